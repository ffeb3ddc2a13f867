package domain

import "strings"

// QualityTier classifies a request as freely downloadable or privileged.
// It is derived per request and never stored.
type QualityTier string

const (
	TierStandard QualityTier = "standard"
	TierPremium  QualityTier = "premium"
)

// premiumAudio lists the bitrates that require an authenticated caller.
var premiumAudio = []string{"192k", "320k"}

// ClassifyTier computes the quality tier of a request.
func ClassifyTier(r DownloadRequest) QualityTier {
	if RequiresPrivilege(r) {
		return TierPremium
	}
	return TierStandard
}

// RequiresPrivilege reports whether the request must come from an
// authenticated caller. It performs no I/O and never inspects identity.
// Audio bitrates match exactly, so callers classify a normalized request.
func RequiresPrivilege(r DownloadRequest) bool {
	return isPremiumAudio(r) || isPremiumVideo(r)
}

func isPremiumAudio(r DownloadRequest) bool {
	if !r.ExtractAudio {
		return false
	}
	for _, p := range premiumAudio {
		if r.AudioQuality == p {
			return true
		}
	}
	return false
}

func isPremiumVideo(r DownloadRequest) bool {
	res := strings.ToLower(strings.TrimSpace(r.Resolution))
	if res == "" {
		return false
	}
	return !IsFreeResolution(res)
}

// IsFreeResolution reports whether a WxH resolution belongs to the free tiers:
// exactly 854x480, or any 640- or 480-wide resolution.
func IsFreeResolution(res string) bool {
	res = strings.ToLower(strings.TrimSpace(res))
	if res == "854x480" {
		return true
	}
	return strings.HasPrefix(res, "640x") || strings.HasPrefix(res, "480x")
}
