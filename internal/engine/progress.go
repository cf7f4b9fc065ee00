package engine

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// progressBatch accumulates one key=value block of the engine's progress
// stream. Blocks are terminated by a "progress=continue" or "progress=end"
// line.
type progressBatch struct {
	frame      int64
	frameSet   bool
	fps        float64
	fpsSet     bool
	outTimeUs  int64
	outTimeSet bool
	speed      string
	speedSet   bool
}

// scanProgress reads the engine's -progress pipe:1 stream and emits one
// update per completed batch. The ratio is derived from the batch out_time
// against duration; an unknown duration pins the ratio at zero until the
// final "progress=end" batch forces it to one.
func scanProgress(r io.Reader, duration time.Duration, emit func(ProgressUpdate)) error {
	scanner := bufio.NewScanner(r)

	// Default token limit is 64KB; some builds emit long metadata lines.
	const maxScannerBuffer = 1024 * 1024
	scanner.Buffer(make([]byte, 0, 64*1024), maxScannerBuffer)

	var batch progressBatch

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "progress=") {
			final := line == "progress=end"
			emit(batch.update(duration, final))
			batch = progressBatch{}
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "frame":
			if frame, err := strconv.ParseInt(value, 10, 64); err == nil && frame >= 0 {
				batch.frame = frame
				batch.frameSet = true
			}
		case "fps":
			if fps, err := strconv.ParseFloat(value, 64); err == nil && fps >= 0 {
				batch.fps = fps
				batch.fpsSet = true
			}
		case "out_time_us":
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
				batch.outTimeUs = us
				batch.outTimeSet = true
			}
		case "out_time_ms":
			if ms, err := strconv.ParseInt(value, 10, 64); err == nil && ms >= 0 {
				batch.outTimeUs = ms * 1000
				batch.outTimeSet = true
			}
		case "out_time":
			if us := parseOutTime(value); us >= 0 {
				batch.outTimeUs = us
				batch.outTimeSet = true
			}
		case "speed":
			if value != "" && value != "N/A" {
				batch.speed = value
				batch.speedSet = true
			}
		}
	}

	return scanner.Err()
}

// update converts the accumulated batch into a ProgressUpdate.
func (b progressBatch) update(duration time.Duration, final bool) ProgressUpdate {
	u := ProgressUpdate{
		Frame: b.frame,
		FPS:   b.fps,
		Speed: b.speed,
	}
	if b.outTimeSet {
		u.OutTime = time.Duration(b.outTimeUs) * time.Microsecond
	}
	if duration > 0 && b.outTimeSet {
		u.Ratio = clampRatio(float64(b.outTimeUs) / float64(duration.Microseconds()))
	}
	if final {
		u.Ratio = 1
	}
	return u
}

// clampRatio keeps a progress ratio within [0,1].
func clampRatio(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// parseOutTime parses the engine's out_time format "HH:MM:SS.microseconds"
// into microseconds. It returns -1 when the value is absent or malformed.
func parseOutTime(timeStr string) int64 {
	timeStr = strings.TrimSpace(timeStr)
	if timeStr == "" || timeStr == "N/A" {
		return -1
	}

	parts := strings.Split(timeStr, ":")
	if len(parts) != 3 {
		return -1
	}

	hours, err1 := strconv.ParseInt(parts[0], 10, 64)
	mins, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return -1
	}

	secParts := strings.Split(parts[2], ".")
	secs, err3 := strconv.ParseInt(secParts[0], 10, 64)
	if err3 != nil {
		return -1
	}

	var microsecs int64
	if len(secParts) > 1 {
		// Pad or truncate the fractional part to 6 digits
		usStr := secParts[1]
		for len(usStr) < 6 {
			usStr += "0"
		}
		if len(usStr) > 6 {
			usStr = usStr[:6]
		}
		microsecs, _ = strconv.ParseInt(usStr, 10, 64)
	}

	return hours*3600*1000000 + mins*60*1000000 + secs*1000000 + microsecs
}
