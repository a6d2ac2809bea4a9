/*
NAME
  list.go

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package codecutil provides utilities shared by the codec packages: the View
// byte window, length prefixed record framing and the list of known codecs.
package codecutil

// All codecs that can be depacketized from RTP.
// When adding or removing a codec from this list, the IsValid function below must be updated.
const (
	H264 = "h264" // H.264 video, RFC 6184 payload format.
	AAC  = "aac"  // MPEG-4 AAC audio, RFC 3640 mpeg4-generic payload format.
)

// IsValid checks if a string is a known and valid codec in the right format.
func IsValid(s string) bool {
	switch s {
	case H264, AAC:
		return true
	default:
		return false
	}
}
