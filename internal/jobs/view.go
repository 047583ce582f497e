package jobs

import (
	"math"
	"time"
)

// View is the JSON read model of a Job.
type View struct {
	JobID           string   `json:"job_id"`
	FileName        string   `json:"file_name"`
	FileSize        int64    `json:"file_size"`
	Status          string   `json:"status"`
	Progress        int      `json:"progress"`
	CurrentStep     string   `json:"current_step"`
	StartTime       string   `json:"start_time"`
	EndTime         *string  `json:"end_time,omitempty"`
	Duration        *float64 `json:"duration,omitempty"`
	Result          any      `json:"result"`
	Error           *string  `json:"error"`
	AWSServicesUsed []string `json:"aws_services_used"`
	CostEstimate    float64  `json:"cost_estimate"`
}

// Round4 rounds a USD amount for display.
func Round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func (j Job) View() View {
	v := View{
		JobID:           j.ID,
		FileName:        j.FileName,
		FileSize:        j.FileSize,
		Status:          string(j.Status),
		Progress:        j.Progress,
		CurrentStep:     j.CurrentStep,
		StartTime:       j.StartTime.UTC().Format(time.RFC3339Nano),
		Result:          j.Result,
		AWSServicesUsed: j.Services,
		CostEstimate:    Round4(j.Cost),
	}
	if v.AWSServicesUsed == nil {
		v.AWSServicesUsed = []string{}
	}
	if j.EndTime != nil {
		end := j.EndTime.UTC().Format(time.RFC3339Nano)
		d := j.EndTime.Sub(j.StartTime).Seconds()
		v.EndTime = &end
		v.Duration = &d
	}
	if j.Error != "" {
		e := j.Error
		v.Error = &e
	}
	return v
}

func Views(js []Job) []View {
	out := make([]View, len(js))
	for i, j := range js {
		out[i] = j.View()
	}
	return out
}
