package tasks

import (
	"context"
	"strings"

	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/services"
)

// resolvePreview runs the provider chain for one track and reports every URL
// attempted. Strict priority order, stopping at the first success:
//
//  1. The platform's own preview URL, when the lookup supplied one. It is the
//     exact recording by definition, so no identity check applies.
//  2. Direct ISRC lookup, when an ISRC is known. A hit is authoritative.
//  3. Free-text search providers in configured order. When an ISRC is known,
//     a candidate must carry a matching code; a non-empty result set with no
//     matching code is a hard stop with isrcMismatch set, because returning
//     wrong audio is worse than returning none.
//
// Provider errors degrade to the next provider. Each provider call runs
// under its own short timeout so one slow catalog cannot stall the chain.
func (p *Pipeline) resolvePreview(ctx context.Context, ids *models.TrackIdentifiers, country string) *models.PreviewResolution {
	resolution := &models.PreviewResolution{Provenance: models.ProvenanceFailed}

	if ids.PlatformPreviewURL != "" {
		resolution.ChosenURL = ids.PlatformPreviewURL
		resolution.Provenance = models.ProvenancePlatform
		resolution.Candidates = append(resolution.Candidates, models.PreviewCandidate{
			URL:       ids.PlatformPreviewURL,
			Provider:  models.ProvenancePlatform,
			Succeeded: true,
		})
		return resolution
	}

	if ids.ISRC != "" && p.isrcLookup != nil {
		url, err := p.lookupISRC(ctx, ids.ISRC)
		if err == nil && url != "" {
			resolution.ChosenURL = url
			resolution.Provenance = p.isrcLookup.ISRCTag()
			resolution.Candidates = append(resolution.Candidates, models.PreviewCandidate{
				URL:       url,
				Provider:  p.isrcLookup.ISRCTag(),
				Succeeded: true,
			})
			return resolution
		}
		if err != nil {
			p.logger.Debug("isrc lookup failed, trying search providers", "isrc", ids.ISRC, "error", err)
		}
	}

	for _, provider := range p.searches {
		candidates, err := p.search(ctx, provider, ids, country)
		if err != nil {
			p.logger.Debug("search provider failed, trying next", "provider", provider.Tag(), "error", err)
			continue
		}
		if len(candidates) == 0 {
			continue
		}

		if ids.ISRC == "" {
			// Nothing to verify against; the provider's top result stands.
			resolution.ChosenURL = candidates[0].PreviewURL
			resolution.Provenance = provider.Tag()
			resolution.Candidates = append(resolution.Candidates, models.PreviewCandidate{
				URL:       candidates[0].PreviewURL,
				Provider:  provider.Tag(),
				Succeeded: true,
			})
			return resolution
		}

		if match := matchISRC(candidates, ids.ISRC); match != nil {
			resolution.ChosenURL = match.PreviewURL
			resolution.Provenance = provider.Tag()
			resolution.Candidates = append(resolution.Candidates, models.PreviewCandidate{
				URL:       match.PreviewURL,
				Provider:  provider.Tag(),
				Succeeded: true,
			})
			return resolution
		}

		// Candidates exist but none carry the expected ISRC. Record the best
		// one as attempted-but-unused and stop the chain.
		resolution.ISRCMismatch = true
		resolution.Candidates = append(resolution.Candidates, models.PreviewCandidate{
			URL:      candidates[0].PreviewURL,
			Provider: provider.Tag(),
		})
		return resolution
	}

	return resolution
}

func (p *Pipeline) lookupISRC(ctx context.Context, isrc string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.providerTimeout)
	defer cancel()
	return p.isrcLookup.LookupISRC(callCtx, isrc)
}

func (p *Pipeline) search(ctx context.Context, provider services.SearchProvider, ids *models.TrackIdentifiers, country string) ([]services.SearchCandidate, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.providerTimeout)
	defer cancel()
	return provider.Search(callCtx, ids.Title, ids.Artist, country)
}

func matchISRC(candidates []services.SearchCandidate, isrc string) *services.SearchCandidate {
	for i := range candidates {
		if strings.EqualFold(candidates[i].ISRC, isrc) && candidates[i].PreviewURL != "" {
			return &candidates[i]
		}
	}
	return nil
}
