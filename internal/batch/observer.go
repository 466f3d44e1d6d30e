package batch

// Observer receives progress from a running batch. The Runner serializes all
// calls, so implementations need no locking of their own.
type Observer interface {
	OnStart(mode Mode, total int)
	OnItemStart(input string)
	OnItemDone(res ItemResult, completed, total int)
	OnFinish(r *Report)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) OnStart(Mode, int)               {}
func (NopObserver) OnItemStart(string)              {}
func (NopObserver) OnItemDone(ItemResult, int, int) {}
func (NopObserver) OnFinish(*Report)                {}

// Observers fans events out to several observers in order.
type Observers []Observer

func (o Observers) OnStart(mode Mode, total int) {
	for _, x := range o {
		x.OnStart(mode, total)
	}
}

func (o Observers) OnItemStart(input string) {
	for _, x := range o {
		x.OnItemStart(input)
	}
}

func (o Observers) OnItemDone(res ItemResult, completed, total int) {
	for _, x := range o {
		x.OnItemDone(res, completed, total)
	}
}

func (o Observers) OnFinish(r *Report) {
	for _, x := range o {
		x.OnFinish(r)
	}
}
