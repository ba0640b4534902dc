package webrtc

import (
	"strings"

	pion "github.com/pion/webrtc/v4"
)

var videoFeedback = []pion.RTCPFeedback{
	{Type: "goog-remb"},
	{Type: "ccm", Parameter: "fir"},
	{Type: "nack"},
	{Type: "nack", Parameter: "pli"},
}

// videoCodecs is the video capability list offered by every session.
func videoCodecs() []pion.RTPCodecParameters {
	h264 := func(fmtp string, pt pion.PayloadType) pion.RTPCodecParameters {
		return pion.RTPCodecParameters{
			RTPCodecCapability: pion.RTPCodecCapability{
				MimeType:     pion.MimeTypeH264,
				ClockRate:    90000,
				SDPFmtpLine:  fmtp,
				RTCPFeedback: videoFeedback,
			},
			PayloadType: pt,
		}
	}

	return []pion.RTPCodecParameters{
		{
			RTPCodecCapability: pion.RTPCodecCapability{
				MimeType:     pion.MimeTypeVP8,
				ClockRate:    90000,
				RTCPFeedback: videoFeedback,
			},
			PayloadType: 96,
		},
		{
			RTPCodecCapability: pion.RTPCodecCapability{
				MimeType:     pion.MimeTypeVP9,
				ClockRate:    90000,
				SDPFmtpLine:  "profile-id=0",
				RTCPFeedback: videoFeedback,
			},
			PayloadType: 98,
		},
		h264("level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f", 102),
		h264("level-asymmetry-allowed=1;packetization-mode=0;profile-level-id=42001f", 104),
		h264("level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f", 106),
		h264("level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=64001f", 112),
		{
			RTPCodecCapability: pion.RTPCodecCapability{
				MimeType:     pion.MimeTypeAV1,
				ClockRate:    90000,
				RTCPFeedback: videoFeedback,
			},
			PayloadType: 45,
		},
	}
}

// matchCodecs keeps the codecs whose MIME type equals mimeType.
func matchCodecs(codecs []pion.RTPCodecParameters, mimeType string) []pion.RTPCodecParameters {
	var matched []pion.RTPCodecParameters
	for _, c := range codecs {
		if strings.EqualFold(c.MimeType, mimeType) {
			matched = append(matched, c)
		}
	}
	return matched
}
