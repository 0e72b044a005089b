// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package eit

// Descriptor tags read by the engine. Everything else in the blob is skipped.
const (
	tagComponent      = 0x50
	tagContent        = 0x54
	tagCaptionService = 0x86
)

type descriptor struct {
	tag  byte
	data []byte
}

// parseDescriptors splits an MPEG descriptor loop. A truncated descriptor ends the loop.
func parseDescriptors(blob []byte) []descriptor {
	var out []descriptor
	for i := 0; i+2 <= len(blob); {
		tag, n := blob[i], int(blob[i+1])
		if i+2+n > len(blob) {
			break
		}
		out = append(out, descriptor{tag: tag, data: blob[i+2 : i+2+n]})
		i += 2 + n
	}
	return out
}

// features are the per-event flags derived from the descriptor blob.
type features struct {
	captioned    bool
	stereo       bool
	hdtv         bool
	subtitled    bool
	hasContent   bool
	category     string
	categoryType CategoryType
}

func extractFeatures(blob []byte) features {
	var f features
	for _, d := range parseDescriptors(blob) {
		switch d.tag {
		case tagCaptionService:
			f.captioned = true
		case tagComponent:
			if len(d.data) < 2 {
				continue
			}
			content, ctype := d.data[0]&0x0f, d.data[1]
			f.hdtv = f.hdtv || isHDTV(content, ctype)
			f.stereo = f.stereo || isStereo(content, ctype)
			f.subtitled = f.subtitled || isSubtitled(content, ctype)
		case tagContent:
			if f.hasContent || len(d.data) < 1 {
				continue
			}
			f.hasContent = true
			f.category, f.categoryType = contentCategory(d.data[0] >> 4)
		}
	}
	return f
}

func isHDTV(content, ctype byte) bool {
	switch content {
	case 0x01: // MPEG-2 video
		return ctype >= 0x09 && ctype <= 0x10
	case 0x05: // H.264/AVC video
		return (ctype >= 0x0b && ctype <= 0x10) || (ctype >= 0x80 && ctype <= 0x84)
	}
	return false
}

func isStereo(content, ctype byte) bool {
	switch content {
	case 0x02, 0x06: // MPEG-1 layer 2, HE-AAC
		return ctype == 0x03
	}
	return false
}

func isSubtitled(content, ctype byte) bool {
	if content != 0x03 {
		return false
	}
	return ctype == 0x01 ||
		(ctype >= 0x10 && ctype <= 0x13) ||
		(ctype >= 0x20 && ctype <= 0x23)
}

// contentCategory maps the first content nibble of a content descriptor.
func contentCategory(level1 byte) (string, CategoryType) {
	switch level1 {
	case 0x1:
		return "Movie", CategoryMovie
	case 0x2:
		return "News", CategoryTVShow
	case 0x3:
		return "Show", CategoryTVShow
	case 0x4:
		return "Sports", CategorySports
	case 0x5:
		return "Kids", CategoryTVShow
	case 0x6:
		return "Music", CategoryTVShow
	case 0x7:
		return "Arts/Culture", CategoryTVShow
	case 0x8:
		return "Social/Political", CategoryTVShow
	case 0x9:
		return "Education", CategoryTVShow
	case 0xa:
		return "Leisure/Hobby", CategoryTVShow
	}
	return "", CategoryNone
}
