package types

// Detection flags set by the upstream detection stage. Measurement status
// flags continue in the same bit vector starting at 0x10000.
const (
	FlagEdge               int64 = 0x0001
	FlagShapeShift         int64 = 0x0002
	FlagShapeMaxIter       int64 = 0x0004
	FlagShapeUnweighted    int64 = 0x0008
	FlagShapeUnweightedPSF int64 = 0x0010
	FlagShapeUnweightedBad int64 = 0x0020
	FlagPeakCenter         int64 = 0x0040
	FlagBinned1            int64 = 0x0080
	FlagInterp             int64 = 0x0100
	FlagInterpCenter       int64 = 0x0200
	FlagSatur              int64 = 0x0400
	FlagSaturCenter        int64 = 0x0800
	FlagDetectNegative     int64 = 0x1000
	FlagStar               int64 = 0x2000
	FlagPSFStar            int64 = 0x4000

	// FlagsBad marks detections whose measurements should not be trusted.
	FlagsBad = FlagEdge | FlagInterpCenter | FlagSaturCenter
)

// Source is one detection from the upstream source list.
type Source struct {
	ID         int64
	PsfFlux    float64
	PsfFluxErr float64
	X          float64 // centroid, parent pixel coordinates
	Y          float64
	Ixx        float64 // second moments, pixels^2
	Iyy        float64
	Ixy        float64
	Flags      int64
}

// HasFlags reports whether any bit of mask is set on the source.
func (s Source) HasFlags(mask int64) bool {
	return s.Flags&mask != 0
}
