package pipeline

import "image"

// Observer receives everything the presentation layer may show
type Observer interface {
	OnFrameRendered(frame image.Image)
	OnLog(message string)
	OnRowPersisted(startTime, endTime, plate string)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	FrameRendered func(frame image.Image)
	Log           func(message string)
	RowPersisted  func(startTime, endTime, plate string)
}

func (o ObserverFuncs) OnFrameRendered(frame image.Image) {
	if o.FrameRendered != nil {
		o.FrameRendered(frame)
	}
}

func (o ObserverFuncs) OnLog(message string) {
	if o.Log != nil {
		o.Log(message)
	}
}

func (o ObserverFuncs) OnRowPersisted(startTime, endTime, plate string) {
	if o.RowPersisted != nil {
		o.RowPersisted(startTime, endTime, plate)
	}
}

// Multi fans out every callback to each observer in order
func Multi(observers ...Observer) Observer {
	var out multi
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type multi []Observer

func (m multi) OnFrameRendered(frame image.Image) {
	for _, o := range m {
		o.OnFrameRendered(frame)
	}
}

func (m multi) OnLog(message string) {
	for _, o := range m {
		o.OnLog(message)
	}
}

func (m multi) OnRowPersisted(startTime, endTime, plate string) {
	for _, o := range m {
		o.OnRowPersisted(startTime, endTime, plate)
	}
}
