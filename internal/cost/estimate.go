package cost

import (
	"math"

	"github.com/joseph-ayodele/ape/constants"
)

const (
	bytesPerPage   = 100 << 10
	analyzedChars  = 5000
	textAnalyzeOps = 3
)

// EstimateFile predicts the enhanced-backend spend for one upload before it
// is processed. Nothing is recorded. Without the enhanced backend every
// format is parsed locally and costs nothing.
func EstimateFile(format constants.Format, size int64, enhanced bool) float64 {
	if !enhanced || size <= 0 {
		return 0
	}
	switch format {
	case constants.PDF, constants.DOCX:
		pages := math.Ceil(float64(size) / bytesPerPage)
		return pages * textractPerPage[OpAnalyzeDoc]
	case constants.IMAGE:
		return textractPerPage[OpDetectText]
	case constants.TEXT:
		units := math.Max(1, math.Min(float64(size), analyzedChars)/100)
		return textAnalyzeOps * units * comprehendPerUnit[OpDetectEntities]
	case constants.CSV:
		return comprehendPerUnit[OpDetectEntities]
	default:
		return 0
	}
}
