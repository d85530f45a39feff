package pricing

import (
	"fmt"

	"github.com/nijaru/interview-feedback/config"
	"github.com/nijaru/interview-feedback/errors"
	"github.com/nijaru/interview-feedback/models"
)

// Price is per-token USD pricing.
type Price struct {
	Input  float64
	Output float64
}

func fromPer1K(p config.Price) Price {
	return Price{Input: p.InputPer1K / 1000, Output: p.OutputPer1K / 1000}
}

// Calculator turns token usage into cost using a static table.
type Calculator struct {
	table map[models.Provider]Price
}

func NewCalculator(cfg config.PricingConfig) *Calculator {
	return &Calculator{table: map[models.Provider]Price{
		models.ProviderOpenAI: fromPer1K(cfg.OpenAI),
		models.ProviderGemini: fromPer1K(cfg.Gemini),
	}}
}

// Price returns the per-token price for p.
func (c *Calculator) Price(p models.Provider) (Price, error) {
	price, ok := c.table[p]
	if !ok {
		return Price{}, errors.Internal("Calculator.Price", nil, fmt.Sprintf("no pricing configured for provider %q", p))
	}
	return price, nil
}

// Cost is input*inputPrice + output*outputPrice for the provider.
func (c *Calculator) Cost(usage models.ProviderUsage, p models.Provider) (float64, error) {
	price, err := c.Price(p)
	if err != nil {
		return 0, err
	}
	return float64(usage.InputTokens)*price.Input + float64(usage.OutputTokens)*price.Output, nil
}

func (c *Calculator) CostInfo(usage models.ProviderUsage, p models.Provider) (*models.CostInfo, error) {
	cost, err := c.Cost(usage, p)
	if err != nil {
		return nil, err
	}
	total := usage.TotalTokens
	if total == 0 {
		total = usage.InputTokens + usage.OutputTokens
	}
	return &models.CostInfo{
		TotalCost:    cost,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalTokens:  total,
		Provider:     p,
	}, nil
}
