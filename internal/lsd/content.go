package lsd

import "github.com/cimillas/odl-lending/internal/domain"

const (
	// DRMFeedbooksAudiobook is the delivery mechanism stored for DeMarque
	// audiobooks. Their status documents declare the manifest type instead.
	DRMFeedbooksAudiobook = "http://www.feedbooks.com/audiobooks/access-restriction"
	FeedbooksAudioType    = "application/audiobook+json; protection=http://www.feedbooks.com/audiobooks/access-restriction"
)

// SelectContentLink picks the link a patron should download for the requested
// delivery mechanism. Unprotected content is the publication link of the
// requested type, DeMarque audiobooks sit behind the manifest link and any
// other DRM behind the license link of that scheme. With no mechanism
// requested the first content link wins.
func SelectContentLink(links Links, mechanism domain.DeliveryMechanism) (Link, bool) {
	if mechanism.IsZero() {
		for _, l := range links {
			switch l.Rel {
			case RelPublication, RelManifest, RelLicense:
				return l, true
			}
		}
		return Link{}, false
	}

	switch mechanism.DRMScheme {
	case "":
		return links.Get(RelPublication, mechanism.ContentType)
	case DRMFeedbooksAudiobook:
		return links.Get(RelManifest, FeedbooksAudioType)
	default:
		return links.Get(RelLicense, mechanism.DRMScheme)
	}
}
