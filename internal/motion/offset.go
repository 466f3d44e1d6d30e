package motion

import "fmt"

// Range is a half-open byte range [Start, Start+Length) within a container.
type Range struct {
	Start  uint64
	Length uint64
}

// End returns the exclusive end of r.
func (r Range) End() uint64 { return r.Start + r.Length }

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End())
}

// ComputeOffset returns the motion-photo offset, the number of bytes from the
// start of the appended video to the end of the container.
func ComputeOffset(stillSize, mergedSize uint64) (uint64, error) {
	if mergedSize < stillSize {
		return 0, Errorf(KindPrecondition, "compute offset", "",
			"merged size %d is smaller than still size %d", mergedSize, stillSize)
	}
	return mergedSize - stillSize, nil
}

// PositionOfVideoStart returns the byte position where the video segment
// begins, which equals the length of the leading still image.
func PositionOfVideoStart(mergedSize, offset uint64) (uint64, error) {
	if offset > mergedSize {
		return 0, Errorf(KindPrecondition, "video start", "",
			"offset %d exceeds container size %d", offset, mergedSize)
	}
	return mergedSize - offset, nil
}

// RangesFor splits a container of total bytes into its image and video
// ranges. The two ranges are adjacent and together cover [0, total).
func RangesFor(total, offset uint64) (image, video Range, err error) {
	start, err := PositionOfVideoStart(total, offset)
	if err != nil {
		return Range{}, Range{}, err
	}
	image = Range{Start: 0, Length: start}
	video = Range{Start: start, Length: offset}
	return image, video, nil
}
