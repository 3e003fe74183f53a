package io

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/matzehuels/forcelayout/pkg/errors"
	"github.com/matzehuels/forcelayout/pkg/graph"
	"github.com/matzehuels/forcelayout/pkg/layout"
)

// ResultRecord is the interchange form of a layout result.
type ResultRecord struct {
	RunID       string                    `json:"run_id,omitempty"`
	Positions   map[string]graph.Position `json:"positions"`
	BoundingBox graph.Rect                `json:"bounding_box"`
	Fit         bool                      `json:"fit"`
	Padding     float64                   `json:"padding"`
	Reason      string                    `json:"reason"`
	Iterations  int                       `json:"iterations"`
	Temperature float64                   `json:"temperature"`
	DurationMS  float64                   `json:"duration_ms"`
	NonFinite   int                       `json:"non_finite,omitempty"`
}

// NewResultRecord converts a result to its record form.
func NewResultRecord(res *layout.Result) ResultRecord {
	return ResultRecord{
		RunID:       res.RunID,
		Positions:   res.Positions,
		BoundingBox: res.BoundingBox,
		Fit:         res.Fit,
		Padding:     res.Padding,
		Reason:      string(res.Reason),
		Iterations:  res.Iterations,
		Temperature: res.Temperature,
		DurationMS:  float64(res.Duration) / float64(time.Millisecond),
		NonFinite:   res.NonFinite,
	}
}

// Result converts the record back, validating the reason and positions.
func (r ResultRecord) Result() (*layout.Result, error) {
	reason, err := layout.ParseReason(r.Reason)
	if err != nil {
		return nil, err
	}
	for id, p := range r.Positions {
		if !p.IsFinite() {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "position of %q is not finite", id)
		}
	}
	positions := r.Positions
	if positions == nil {
		positions = map[string]graph.Position{}
	}
	return &layout.Result{
		RunID:       r.RunID,
		Positions:   positions,
		BoundingBox: r.BoundingBox,
		Fit:         r.Fit,
		Padding:     r.Padding,
		Reason:      reason,
		Iterations:  r.Iterations,
		Temperature: r.Temperature,
		Duration:    time.Duration(r.DurationMS * float64(time.Millisecond)),
		NonFinite:   r.NonFinite,
	}, nil
}

// MarshalResult encodes a layout result as JSON.
func MarshalResult(res *layout.Result) ([]byte, error) {
	data, err := json.Marshal(NewResultRecord(res))
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return data, nil
}

// UnmarshalResult decodes a JSON layout result.
func UnmarshalResult(data []byte) (*layout.Result, error) {
	var r ResultRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode result")
	}
	return r.Result()
}

// WriteResult writes res as indented JSON.
func WriteResult(res *layout.Result, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewResultRecord(res)); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
