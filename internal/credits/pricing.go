// Package credits prices generation jobs. Balances themselves live in the
// users table and move only through db.DebitCredits / db.RefundCredits.
package credits

import (
	"fmt"
	"math"
	"strings"

	"podforge/internal/models"
)

// PromoWordBucket is the promo-text word bucket: every started bucket of
// this many words adds one credit to the job.
const PromoWordBucket = 500

// Base cost per episode by length tier.
var baseCost = map[models.LengthTier]int{
	models.TierMini:     3,
	models.TierStandard: 5,
	models.TierDeep:     10,
}

var planMultiplier = map[models.Plan]float64{
	models.PlanPersonal:   1.0,
	models.PlanCreator:    0.9,
	models.PlanBusiness:   0.8,
	models.PlanEnterprise: 0.7,
}

// PriceJob returns the credit cost of a generation job.
//
// Canonical formula (the pricing guide's worked examples are the source of
// truth, see DESIGN.md):
//
//	cost = max(1, ceil(plan × (base(tier)×episodes + promo + schedule)))
//
// where promo = ceil(promoWords/500) once per job, and each scheduled
// episode carries a half-credit surcharge rounded up per episode, i.e. one
// credit per scheduled episode. The result is always a positive integer.
func PriceJob(tier models.LengthTier, episodeCount, promoWordCount, scheduledEpisodeCount int, plan models.Plan) (int, error) {
	base, ok := baseCost[tier]
	if !ok {
		return 0, fmt.Errorf("unknown length tier %q", tier)
	}
	mult, ok := planMultiplier[plan]
	if !ok {
		return 0, fmt.Errorf("unknown plan %q", plan)
	}
	if episodeCount < 1 {
		return 0, fmt.Errorf("episode count must be at least 1, got %d", episodeCount)
	}
	if promoWordCount < 0 || scheduledEpisodeCount < 0 {
		return 0, fmt.Errorf("promo word count and scheduled episode count must not be negative")
	}

	promo := 0
	if promoWordCount > 0 {
		promo = (promoWordCount + PromoWordBucket - 1) / PromoWordBucket
	}
	schedule := scheduledEpisodeCount

	total := int(math.Ceil(float64(base*episodeCount+promo+schedule) * mult))
	if total < 1 {
		total = 1
	}
	return total, nil
}

// PriceJobConfig prices a validated job config for the given plan.
func PriceJobConfig(cfg models.JobConfig, plan models.Plan) (int, error) {
	return PriceJob(cfg.LengthTier, cfg.EpisodeCount, CountWords(cfg.PromoText), cfg.ScheduledEpisodeCount, plan)
}

// CountWords counts whitespace-separated words in promo text.
func CountWords(s string) int {
	return len(strings.Fields(s))
}
