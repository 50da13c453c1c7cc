package processing

import (
	"bufio"
	"encoding/binary"
	"io"
)

const (
	markerSOS         = 0xDA
	markerAPP1        = 0xE1
	tagOrientation    = 0x0112
	orientationNormal = 1
)

// exifOrientation returns the EXIF orientation (1-8) of a JPEG stream, 1 when absent.
// Values 5-8 mean the stored image is rotated by 90 degrees.
func exifOrientation(r io.Reader) int {
	br := bufio.NewReader(r)
	var soi [2]byte
	if _, err := io.ReadFull(br, soi[:]); err != nil || soi != [2]byte{0xFF, 0xD8} {
		return orientationNormal
	}

	for {
		var hdr [4]byte
		if _, err := io.ReadFull(br, hdr[:]); err != nil || hdr[0] != 0xFF {
			return orientationNormal
		}
		if hdr[1] == markerSOS {
			return orientationNormal
		}
		size := int(binary.BigEndian.Uint16(hdr[2:])) - 2
		if size < 0 {
			return orientationNormal
		}
		if hdr[1] != markerAPP1 {
			if _, err := br.Discard(size); err != nil {
				return orientationNormal
			}
			continue
		}

		seg := make([]byte, size)
		if _, err := io.ReadFull(br, seg); err != nil {
			return orientationNormal
		}
		if len(seg) >= 6 && string(seg[:6]) == "Exif\x00\x00" {
			return tiffOrientation(seg[6:])
		}
	}
}

// tiffOrientation reads the orientation tag from IFD0 of a TIFF block
func tiffOrientation(b []byte) int {
	if len(b) < 8 {
		return orientationNormal
	}
	var order binary.ByteOrder
	switch string(b[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return orientationNormal
	}

	off := int(order.Uint32(b[4:8]))
	if off < 8 || off+2 > len(b) {
		return orientationNormal
	}
	n := int(order.Uint16(b[off:]))
	for i := 0; i < n; i++ {
		e := off + 2 + i*12
		if e+12 > len(b) {
			break
		}
		if order.Uint16(b[e:]) != tagOrientation {
			continue
		}
		if v := int(order.Uint16(b[e+8:])); v >= 1 && v <= 8 {
			return v
		}
		break
	}
	return orientationNormal
}
