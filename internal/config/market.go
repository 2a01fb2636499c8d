package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/efreitasn/simmarket/internal/domain"
)

// MarketFile is the optional YAML description of the tradable universe.
type MarketFile struct {
	Symbols []struct {
		Code         string  `yaml:"code"`
		Name         string  `yaml:"name"`
		InitialPrice float64 `yaml:"initial_price"`
		Description  string  `yaml:"description"`
	} `yaml:"symbols"`
	AdminIDs      []string `yaml:"admin_ids"`
	NewsTemplates []string `yaml:"news_templates"`
}

// LoadMarketFile reads a YAML market file and expands ${VAR} references.
func LoadMarketFile(path string) (*MarketFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read market file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var mf MarketFile
	if err := yaml.Unmarshal([]byte(expanded), &mf); err != nil {
		return nil, fmt.Errorf("parse market file yaml: %w", err)
	}
	return &mf, nil
}

// apply overlays non-empty sections of the market file onto c.
func (c *Config) apply(mf *MarketFile) {
	if len(mf.Symbols) > 0 {
		symbols := make([]domain.Symbol, 0, len(mf.Symbols))
		for _, s := range mf.Symbols {
			symbols = append(symbols, domain.Symbol{
				Code:         domain.Normalize(s.Code),
				Name:         s.Name,
				InitialPrice: s.InitialPrice,
				Description:  s.Description,
			})
		}
		c.Symbols = symbols
	}
	c.AdminIDs = append(c.AdminIDs, mf.AdminIDs...)
	if len(mf.NewsTemplates) > 0 {
		c.NewsTemplates = mf.NewsTemplates
	}
}

// DefaultSymbols is the built-in universe. Only the primary symbol takes
// its seed from configuration.
func DefaultSymbols(initialPrice float64) []domain.Symbol {
	return []domain.Symbol{
		{Code: "ZRB", Name: "Ziran Coin", InitialPrice: initialPrice,
			Description: "The house currency, said to smell of cumin and grilled skewers."},
		{Code: "STAR", Name: "Star Coin", InitialPrice: 50,
			Description: "A glittering token from a distant galaxy. Holders expect a trip to the moon."},
		{Code: "SHEEP", Name: "Sheep Coin", InitialPrice: 10,
			Description: "Gentle most days, a stampede when the market turns."},
		{Code: "XIANGZI", Name: "Xiangzi Coin", InitialPrice: 5,
			Description: "Issued in honour of the hardworking rickshaw puller."},
		{Code: "MIAO", Name: "Miao Coin", InitialPrice: 20,
			Description: "Minted by a secretive cat collective. Unpredictable by nature."},
	}
}

// DefaultNewsTemplates are headline bodies; {symbol} is replaced with a code.
func DefaultNewsTemplates() []string {
	return []string{
		"{symbol} announces a strategic partnership with a mysterious consortium.",
		"Rumours say the {symbol} founding team is quietly selling.",
		"Analysts spot a golden cross on the {symbol} chart.",
		"Regulators open an inquiry into {symbol}; outlook unclear.",
		"The {symbol} community proposes a token burn.",
		"A famous investor calls {symbol} the next hundred-bagger.",
		"Network congestion slows {symbol} transfers.",
		"{symbol} publishes an ambitious roadmap full of buzzwords.",
		"Capital rotates out of the {symbol} sector.",
		"{symbol} closes a funding round led by a top venture fund.",
		"A major exchange hints at listing {symbol}.",
		"A whale wallet just moved ten million {symbol}.",
		"{symbol} node upgrade fails; block production paused for an hour.",
		"An independent audit of {symbol} scores above expectations.",
		"{symbol} launches a staking campaign with eye-watering yields.",
		"A rival's scandal sends money flowing back into {symbol}.",
		"A core {symbol} developer resigns, unsettling the community.",
		"{symbol} teams up with a well-known game studio.",
	}
}
