package saga

// WorkItem is one step the engine hands to a registered handler.
type WorkItem struct {
	InstanceID int64
	ProcessID  string
	Key        CorrelationKey
	State      State // state being entered
	Name       string
	// declared step params merged over the instance params
	Params map[string]any
}

// StringParam returns a string parameter, or "" when absent or not a string.
func (item WorkItem) StringParam(name string) string {
	if s, ok := item.Params[name].(string); ok {
		return s
	}
	return ""
}
