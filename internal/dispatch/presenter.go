package dispatch

// Presenter receives classified messages on the dispatch goroutine.
type Presenter interface {
	OnDirectionChanged(d Direction)
	OnCaption(text string)
}

// Fanout calls each presenter in order.
type Fanout []Presenter

func (f Fanout) OnDirectionChanged(d Direction) {
	for _, p := range f {
		p.OnDirectionChanged(d)
	}
}

func (f Fanout) OnCaption(text string) {
	for _, p := range f {
		p.OnCaption(text)
	}
}

// PresenterFuncs adapts plain functions to Presenter. Nil fields are skipped.
type PresenterFuncs struct {
	Direction func(Direction)
	Caption   func(string)
}

func (p PresenterFuncs) OnDirectionChanged(d Direction) {
	if p.Direction != nil {
		p.Direction(d)
	}
}

func (p PresenterFuncs) OnCaption(text string) {
	if p.Caption != nil {
		p.Caption(text)
	}
}
