package encoder

import "strconv"

// Args returns the video encoder arguments for p. Dispatch is exhaustive
// over Vendor; an out-of-range vendor is encoded with the CPU family.
func Args(p Profile) []string {
	q := strconv.Itoa(p.Quality)

	switch p.Vendor {
	case NVENC:
		return []string{"-c:v", p.Codec, "-preset", p.Preset, "-rc", "vbr", "-cq", q, "-b:v", "0"}
	case QSV:
		return []string{"-c:v", p.Codec, "-preset", p.Preset, "-global_quality", q}
	case AMF:
		return []string{"-c:v", p.Codec, "-usage", p.Preset, "-rc", "vbr", "-qp", q}
	default:
		return []string{"-c:v", DefaultCodec, "-preset", p.Preset, "-crf", q}
	}
}

// OutputArgs returns the frame rate and thread arguments of p, if any.
func OutputArgs(p Profile) []string {
	var args []string
	if p.TargetFPS != nil && *p.TargetFPS > 0 {
		args = append(args, "-r", strconv.Itoa(*p.TargetFPS))
	}
	if p.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(p.Threads))
	}
	return args
}
