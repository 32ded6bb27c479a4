package recorder

import (
	"regexp"
	"strconv"
	"strings"
)

// Progress is what yt-dlp reports on a "[download]" line, e.g.
// "[download]   4.3% of ~2.19GiB at  3.05MiB/s ETA 11:22".
// Livestream downloads often only report size and speed.
type Progress struct {
	Percent    float64
	TotalBytes int64
	Speed      string
	ETA        string
}

var (
	percentRe = regexp.MustCompile(`(?i)\[download\]\s+([0-9.]+)%`)
	totalRe   = regexp.MustCompile(`(?i)\bof\s+~?\s*([0-9.]+)([KMGT]?i?B)\b`)
	speedRe   = regexp.MustCompile(`(?i)\bat\s+([0-9.]+[KMGT]?i?B/s)`)
	etaRe     = regexp.MustCompile(`(?i)\bETA\s+([0-9:]+)`)
)

// ParseProgress extracts progress from one downloader line. ok is false for
// lines that are not percentage progress reports.
func ParseProgress(line string) (p Progress, ok bool) {
	m := percentRe.FindStringSubmatch(line)
	if m == nil {
		return p, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return p, false
	}
	p.Percent = pct
	if mm := totalRe.FindStringSubmatch(line); mm != nil {
		p.TotalBytes = decUnit(mm[1], mm[2])
	}
	if mm := speedRe.FindStringSubmatch(line); mm != nil {
		p.Speed = mm[1]
	}
	if mm := etaRe.FindStringSubmatch(line); mm != nil {
		p.ETA = mm[1]
	}
	return p, true
}

// decUnit converts "2.19","GiB" into bytes; decimal units (MB) use powers of 1000.
func decUnit(val, unit string) int64 {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0
	}
	u := strings.ToUpper(unit)
	base := 1000.0
	if strings.Contains(u, "I") {
		base = 1024
	}
	mult := 1.0
	switch u[0] {
	case 'K':
		mult = base
	case 'M':
		mult = base * base
	case 'G':
		mult = base * base * base
	case 'T':
		mult = base * base * base * base
	}
	return int64(f * mult)
}
