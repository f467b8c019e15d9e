package instance

// InstanceAttributeTableBuilderOption is a functional option for configuring an InstanceAttributeTable.
type InstanceAttributeTableBuilderOption func(*instanceAttributeTable)

// WithMaxInstancesPerDrawCall sets the number of slots reserved for each draw call.
//
// Parameters:
//   - n: instances per draw call
//
// Returns:
//   - InstanceAttributeTableBuilderOption: option function to apply
func WithMaxInstancesPerDrawCall(n uint32) InstanceAttributeTableBuilderOption {
	return func(t *instanceAttributeTable) {
		t.maxPerCall = n
	}
}

// WithDrawCallSlots sets how many draw calls the table can address at once.
//
// Parameters:
//   - n: number of draw call regions
//
// Returns:
//   - InstanceAttributeTableBuilderOption: option function to apply
func WithDrawCallSlots(n uint32) InstanceAttributeTableBuilderOption {
	return func(t *instanceAttributeTable) {
		t.slots = n
	}
}

// WithTableLabel sets the buffer label.
//
// Parameters:
//   - label: a short name such as "grass instances"
//
// Returns:
//   - InstanceAttributeTableBuilderOption: option function to apply
func WithTableLabel(label string) InstanceAttributeTableBuilderOption {
	return func(t *instanceAttributeTable) {
		if label != "" {
			t.label = label
		}
	}
}
