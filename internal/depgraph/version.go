package depgraph

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Version is a parsed PEP 440 version. Python versions are not semver: they
// carry epochs, pre/post/dev segments and their own ordering rules, so the
// comparison logic lives here instead of a semver library.
type Version struct {
	Epoch    int
	Release  []int
	PrePhase string // normalized: "a", "b" or "rc"; empty when final
	PreNum   int
	Post     int // -1 when absent
	Dev      int // -1 when absent
	original string
}

var versionRe = regexp.MustCompile(`(?i)^v?` +
	`(?:(\d+)!)?` + // epoch
	`(\d+(?:\.\d+)*)` + // release
	`(?:[._-]?(a|b|c|rc|alpha|beta|pre|preview)[._-]?(\d*))?` + // pre
	`(?:[._-]?(?:post|rev|r)[._-]?(\d*))?` + // post
	`(?:[._-]?dev[._-]?(\d*))?` + // dev
	`(?:\+[a-z0-9._-]+)?$`) // local, ignored for ordering

var prePhases = map[string]string{
	"a": "a", "alpha": "a",
	"b": "b", "beta": "b",
	"c": "rc", "rc": "rc", "pre": "rc", "preview": "rc",
}

// ParseVersion parses a PEP 440 version string.
func ParseVersion(s string) (Version, error) {
	m := versionRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Version{}, fmt.Errorf("unparseable version %q", s)
	}

	v := Version{Post: -1, Dev: -1, original: s}
	if m[1] != "" {
		v.Epoch, _ = strconv.Atoi(m[1])
	}
	for _, part := range strings.Split(m[2], ".") {
		n, _ := strconv.Atoi(part)
		v.Release = append(v.Release, n)
	}
	if m[3] != "" {
		v.PrePhase = prePhases[strings.ToLower(m[3])]
		if m[4] != "" {
			v.PreNum, _ = strconv.Atoi(m[4])
		}
	}
	if m[5] != "" {
		v.Post, _ = strconv.Atoi(m[5])
	} else if hasPostSegment(s) {
		v.Post = 0
	}
	if m[6] != "" {
		v.Dev, _ = strconv.Atoi(m[6])
	} else if hasDevSegment(s) {
		v.Dev = 0
	}
	return v, nil
}

var postSegRe = regexp.MustCompile(`(?i)[._-](?:post|rev|r)[._-]?\d*`)
var devSegRe = regexp.MustCompile(`(?i)[._-]dev[._-]?\d*`)

func hasPostSegment(s string) bool { return postSegRe.MatchString(s) }
func hasDevSegment(s string) bool  { return devSegRe.MatchString(s) }

// Compare orders a against b: -1, 0 or 1. Ordering follows PEP 440:
// dev < pre-releases < final < post, at equal release numbers.
func Compare(a, b Version) int {
	if a.Epoch != b.Epoch {
		return sign(a.Epoch - b.Epoch)
	}
	if c := compareRelease(a.Release, b.Release); c != 0 {
		return c
	}
	if c := comparePre(a, b); c != 0 {
		return c
	}
	if a.Post != b.Post {
		return sign(a.Post - b.Post)
	}
	ad, bd := a.Dev, b.Dev
	if ad == -1 {
		ad = math.MaxInt32
	}
	if bd == -1 {
		bd = math.MaxInt32
	}
	return sign(ad - bd)
}

func compareRelease(a, b []int) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var av, bv int
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if av != bv {
			return sign(av - bv)
		}
	}
	return 0
}

var phaseOrder = map[string]int{"a": 0, "b": 1, "rc": 2}

func comparePre(a, b Version) int {
	// A version that is only a dev release sorts below any pre-release.
	ar := preRank(a)
	br := preRank(b)
	if ar != br {
		return sign(ar - br)
	}
	if a.PrePhase != "" && b.PrePhase != "" {
		if c := sign(phaseOrder[a.PrePhase] - phaseOrder[b.PrePhase]); c != 0 {
			return c
		}
		return sign(a.PreNum - b.PreNum)
	}
	return 0
}

func preRank(v Version) int {
	switch {
	case v.PrePhase == "" && v.Post == -1 && v.Dev != -1:
		return 0 // pure dev release
	case v.PrePhase != "":
		return 1
	default:
		return 2 // final or post
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
