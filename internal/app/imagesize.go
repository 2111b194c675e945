package app

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// errMalformedHeader marks an image header that contradicts its own format.
var errMalformedHeader = errors.New("malformed image header")

// Dimensions is the pixel size declared in an image header. A zero value
// means the header did not reveal the size.
type Dimensions struct {
	Width  int
	Height int
}

// dimensionParsers read pixel dimensions straight from format headers. No
// pixel data is decoded.
var dimensionParsers = map[string]func([]byte) (Dimensions, error){
	typePNG.Ext:  pngDimensions,
	typeJPEG.Ext: jpegDimensions,
	typeGIF.Ext:  gifDimensions,
	typeWEBP.Ext: webpDimensions,
	typeBMP.Ext:  bmpDimensions,
	typeICO.Ext:  icoDimensions,
}

func pngDimensions(b []byte) (Dimensions, error) {
	if len(b) < 24 {
		return Dimensions{}, nil
	}
	if !bytes.Equal(b[12:16], []byte("IHDR")) {
		return Dimensions{}, errMalformedHeader
	}
	w := binary.BigEndian.Uint32(b[16:20])
	h := binary.BigEndian.Uint32(b[20:24])
	if w == 0 || h == 0 || w > 1<<31-1 || h > 1<<31-1 {
		return Dimensions{}, errMalformedHeader
	}
	return Dimensions{Width: int(w), Height: int(h)}, nil
}

func jpegDimensions(b []byte) (Dimensions, error) {
	i := 2
	for i < len(b) {
		if b[i] != 0xFF {
			return Dimensions{}, errMalformedHeader
		}
		for i < len(b) && b[i] == 0xFF {
			i++
		}
		if i >= len(b) {
			break
		}
		marker := b[i]
		i++

		switch {
		case marker == 0xD8 || marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7):
			continue
		case marker == 0xD9 || marker == 0xDA:
			// end of image or start of scan before any frame header
			return Dimensions{}, nil
		}

		if i+2 > len(b) {
			break
		}
		segLen := int(binary.BigEndian.Uint16(b[i : i+2]))
		if segLen < 2 {
			return Dimensions{}, errMalformedHeader
		}

		if marker >= 0xC0 && marker <= 0xC2 {
			// segment: length(2) precision(1) height(2) width(2)
			if i+7 > len(b) {
				break
			}
			h := int(binary.BigEndian.Uint16(b[i+3 : i+5]))
			w := int(binary.BigEndian.Uint16(b[i+5 : i+7]))
			if w == 0 || h == 0 {
				return Dimensions{}, nil
			}
			return Dimensions{Width: w, Height: h}, nil
		}
		i += segLen
	}
	return Dimensions{}, nil
}

func gifDimensions(b []byte) (Dimensions, error) {
	if len(b) < 10 {
		return Dimensions{}, nil
	}
	return Dimensions{
		Width:  int(binary.LittleEndian.Uint16(b[6:8])),
		Height: int(binary.LittleEndian.Uint16(b[8:10])),
	}, nil
}

// webpDimensions handles the lossy (VP8), lossless (VP8L) and extended
// (VP8X) bitstreams. The first chunk follows the 12 byte RIFF header.
func webpDimensions(b []byte) (Dimensions, error) {
	if len(b) < 16 {
		return Dimensions{}, nil
	}
	switch string(b[12:16]) {
	case "VP8X":
		// canvas width-1 and height-1, 24 bits each
		if len(b) < 30 {
			return Dimensions{}, nil
		}
		return Dimensions{Width: int(uint24(b[24:27])) + 1, Height: int(uint24(b[27:30])) + 1}, nil
	case "VP8 ":
		// 3 byte frame tag, start code, then 14 bit width and height
		if len(b) < 30 {
			return Dimensions{}, nil
		}
		if !bytes.Equal(b[23:26], []byte{0x9D, 0x01, 0x2A}) {
			return Dimensions{}, errMalformedHeader
		}
		w := int(binary.LittleEndian.Uint16(b[26:28]) & 0x3FFF)
		h := int(binary.LittleEndian.Uint16(b[28:30]) & 0x3FFF)
		if w == 0 || h == 0 {
			return Dimensions{}, errMalformedHeader
		}
		return Dimensions{Width: w, Height: h}, nil
	case "VP8L":
		// signature byte, then width-1 and height-1 packed in 14 bits each
		if len(b) < 25 {
			return Dimensions{}, nil
		}
		if b[20] != 0x2F {
			return Dimensions{}, errMalformedHeader
		}
		bits := binary.LittleEndian.Uint32(b[21:25])
		return Dimensions{Width: int(bits&0x3FFF) + 1, Height: int(bits>>14&0x3FFF) + 1}, nil
	}
	return Dimensions{}, nil
}

func uint24(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func bmpDimensions(b []byte) (Dimensions, error) {
	if len(b) < 18 {
		return Dimensions{}, nil
	}
	if binary.LittleEndian.Uint32(b[14:18]) == 12 {
		// OS/2 core header
		if len(b) < 22 {
			return Dimensions{}, nil
		}
		w := int(binary.LittleEndian.Uint16(b[18:20]))
		h := int(binary.LittleEndian.Uint16(b[20:22]))
		if w == 0 || h == 0 {
			return Dimensions{}, errMalformedHeader
		}
		return Dimensions{Width: w, Height: h}, nil
	}
	if len(b) < 26 {
		return Dimensions{}, nil
	}
	w := int64(int32(binary.LittleEndian.Uint32(b[18:22])))
	h := int64(int32(binary.LittleEndian.Uint32(b[22:26])))
	if h < 0 {
		// top-down bitmap
		h = -h
	}
	if w <= 0 || h == 0 {
		return Dimensions{}, errMalformedHeader
	}
	return Dimensions{Width: int(w), Height: int(h)}, nil
}

// icoDimensions reports the first directory entry. A zero byte means 256.
func icoDimensions(b []byte) (Dimensions, error) {
	if len(b) < 8 {
		return Dimensions{}, nil
	}
	if binary.LittleEndian.Uint16(b[4:6]) == 0 {
		return Dimensions{}, errMalformedHeader
	}
	w, h := int(b[6]), int(b[7])
	if w == 0 {
		w = 256
	}
	if h == 0 {
		h = 256
	}
	return Dimensions{Width: w, Height: h}, nil
}
