package reward

// StepCache memoizes shaped rewards for a single step.
type StepCache struct {
	values map[AgentID]float64
}

func NewStepCache() *StepCache {
	return &StepCache{values: make(map[AgentID]float64)}
}

func (c *StepCache) Clear() {
	clear(c.values)
}

func (c *StepCache) Put(id AgentID, value float64) {
	c.values[id] = value
}

func (c *StepCache) Get(id AgentID) (float64, bool) {
	value, ok := c.values[id]
	return value, ok
}

func (c *StepCache) Len() int {
	return len(c.values)
}

// Snapshot copies the cached values so callers cannot mutate step state.
func (c *StepCache) Snapshot() map[AgentID]float64 {
	out := make(map[AgentID]float64, len(c.values))
	for id, value := range c.values {
		out[id] = value
	}
	return out
}
