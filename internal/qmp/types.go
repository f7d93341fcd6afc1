package qmp

// DeviceAdd represents a device addition command
type DeviceAdd struct {
	Driver string `json:"driver"`
	ID     string `json:"id"`
}

// DeviceDel represents a device removal command
type DeviceDel struct {
	ID string `json:"id"`
}

// Status represents the VM status
type Status struct {
	Running    bool   `json:"running"`
	Status     string `json:"status"`
	Singlestep bool   `json:"singlestep"`
}

// Screenshot represents a screenshot command
type Screenshot struct {
	Filename string `json:"filename"`
}

// InputEvents is the argument of input-send-event
type InputEvents struct {
	Events []InputEvent `json:"events"`
}

// InputEvent is one abs, rel or btn event
type InputEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// AbsEvent positions an absolute axis
type AbsEvent struct {
	Axis  string `json:"axis"`
	Value int    `json:"value"`
}

// BtnEvent presses or releases a pointer button
type BtnEvent struct {
	Down   bool   `json:"down"`
	Button string `json:"button"`
}
