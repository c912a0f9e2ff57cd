package resmon

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultLeakThreshold is the slope, in KB/s, above which a leak is suspected.
const DefaultLeakThreshold = 5000.0

// Summary is the sampler's JSON summary, keyed by section ("Max", "Avg") and
// then by counter name.
type Summary map[string]map[string]float64

// ReadSummary parses the summary file. Sections that are not flat maps of
// numbers are skipped.
func ReadSummary(path string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse resource summary %s: %w", path, err)
	}
	out := make(Summary, len(raw))
	for section, body := range raw {
		var values map[string]float64
		if err := json.Unmarshal(body, &values); err != nil {
			continue
		}
		out[section] = values
	}
	return out, nil
}

// Point is one sample of a time series.
type Point struct {
	X float64
	Y float64
}

// ReadSeries reads the sampler's whitespace-separated full output and returns
// metric against time. The time column is "wtime" or "Time".
func ReadSeries(path, metric string) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return nil, fmt.Errorf("%s: missing header", path)
	}
	header := strings.Fields(sc.Text())
	timeCol, metricCol := -1, -1
	for i, name := range header {
		switch name {
		case "wtime", "Time":
			if timeCol < 0 {
				timeCol = i
			}
		case metric:
			metricCol = i
		}
	}
	if timeCol < 0 || metricCol < 0 {
		return nil, fmt.Errorf("%s: columns for time and %s not found", path, metric)
	}

	var points []Point
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) <= timeCol || len(fields) <= metricCol {
			continue
		}
		x, errX := strconv.ParseFloat(fields[timeCol], 64)
		y, errY := strconv.ParseFloat(fields[metricCol], 64)
		if errX != nil || errY != nil {
			continue
		}
		points = append(points, Point{X: x, Y: y})
	}
	return points, sc.Err()
}

// FitOptions tunes the leak fit.
type FitOptions struct {
	// Trim drops this many samples at each end. When zero, TrimFraction of
	// the samples is dropped at each end instead.
	Trim         int
	TrimFraction float64
	MinPoints    int
	Threshold    float64
}

// DefaultFitOptions returns the options used when none are configured.
func DefaultFitOptions() FitOptions {
	return FitOptions{TrimFraction: 0.2, MinPoints: 5, Threshold: DefaultLeakThreshold}
}

// Fit is a linear fit of a resource counter over time.
type Fit struct {
	Metric    string  `json:"metric"`
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	Points    int     `json:"points"`
	Leak      bool    `json:"leak"`
}

// FitLeak fits a line through the trimmed series. ok is false when too few
// samples remain or time does not advance.
func FitLeak(metric string, points []Point, opts FitOptions) (Fit, bool) {
	trim := opts.Trim
	if trim <= 0 && opts.TrimFraction > 0 {
		trim = int(float64(len(points)) * opts.TrimFraction)
	}
	if 2*trim >= len(points) {
		return Fit{}, false
	}
	kept := points[trim : len(points)-trim]
	minPoints := opts.MinPoints
	if minPoints < 2 {
		minPoints = 2
	}
	if len(kept) < minPoints {
		return Fit{}, false
	}

	slope, intercept, ok := linearRegression(kept)
	if !ok {
		return Fit{}, false
	}
	return Fit{
		Metric:    metric,
		Slope:     slope,
		Intercept: intercept,
		Points:    len(kept),
		Leak:      IsLeak(slope, opts.Threshold),
	}, true
}

// IsLeak reports a suspected leak when slope is strictly above threshold.
func IsLeak(slope, threshold float64) bool {
	return slope > threshold
}

func linearRegression(points []Point) (float64, float64, bool) {
	n := float64(len(points))
	var sumX, sumY float64
	for _, p := range points {
		sumX += p.X
		sumY += p.Y
	}
	meanX, meanY := sumX/n, sumY/n

	var sxx, sxy float64
	for _, p := range points {
		dx := p.X - meanX
		sxx += dx * dx
		sxy += dx * (p.Y - meanY)
	}
	if sxx == 0 {
		return 0, 0, false
	}
	slope := sxy / sxx
	return slope, meanY - slope*meanX, true
}
