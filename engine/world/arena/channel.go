package arena

// Channel enumerates the per-vertex attribute regions of the arena.
type Channel int

const (
	ChannelPosition Channel = iota
	ChannelNormal
	ChannelMaterial

	ChannelCount
)

// IndexSize is the byte size of one element in the shared index region.
const IndexSize = 4

var channelStrides = [ChannelCount]uint64{
	ChannelPosition: 12,
	ChannelNormal:   12,
	ChannelMaterial: 16,
}

var channelNames = [ChannelCount]string{
	ChannelPosition: "position",
	ChannelNormal:   "normal",
	ChannelMaterial: "material",
}

// Stride returns the byte size of one vertex in this channel.
func (c Channel) Stride() uint64 {
	return channelStrides[c]
}

func (c Channel) String() string {
	if c < 0 || c >= ChannelCount {
		return "unknown"
	}
	return channelNames[c]
}
