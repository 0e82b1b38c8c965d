package detect

import "gonum.org/v1/gonum/stat"

// Stats summarises one frame's detection list.
type Stats struct {
	Total         int                   `json:"total"`
	ByClass       map[ObstacleClass]int `json:"by_class"`
	AvgConfidence float64               `json:"avg_confidence"`
}

// ComputeStats counts detections per class and averages confidence.
func ComputeStats(detections []Detection) Stats {
	s := Stats{
		Total: len(detections),
		ByClass: map[ObstacleClass]int{
			ClassHuman:   0,
			ClassVehicle: 0,
			ClassAnimal:  0,
			ClassDebris:  0,
		},
	}
	if len(detections) == 0 {
		return s
	}

	confidences := make([]float64, 0, len(detections))
	for _, d := range detections {
		if _, ok := s.ByClass[d.Class]; ok {
			s.ByClass[d.Class]++
		}
		confidences = append(confidences, d.Confidence)
	}
	s.AvgConfidence = stat.Mean(confidences, nil)
	return s
}
