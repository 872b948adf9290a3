package filter

// ZoomFilter rejects zoom levels outside [Min, Max].
type ZoomFilter struct {
	Min int
	Max int
}

var _ Filter = (*ZoomFilter)(nil)

func (f *ZoomFilter) Name() string {
	return "zoom"
}

func (f *ZoomFilter) Apply(req Request) error {
	if req.Cell.Z < f.Min || req.Cell.Z > f.Max {
		return reject(f, "zoom %d outside [%d, %d]", req.Cell.Z, f.Min, f.Max)
	}
	return nil
}
