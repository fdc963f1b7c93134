package traffic

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rmax-ai/trafficgen/pkg/client"
)

var (
	productTerms = []string{
		"Smartphone", "Notebook", "Keyboard", "Mouse",
		"Monitor", "Camera", "Headphones", "Smartwatch",
	}

	descriptionSuffixes = []string{
		"with a premium finish",
		"for everyday use",
		"built for professionals",
		"with extended warranty",
		"in limited edition",
		"with wireless connectivity",
	}

	// Some terms never match a product so the target also serves empty results.
	searchTerms = []string{
		"Monitor", "Keyboard", "Mouse", "Gamer", "UltraWide",
		"Full HD", "USB", "NonexistentProduct", "XYZ", "Test",
	}

	// DBErrorKinds are the database failures the target knows how to provoke.
	DBErrorKinds = []string{
		"no_table", "unique_violation", "no_column",
		"syntax_error", "not_null_violation", "data_truncation",
	}
)

const (
	minPrice = 20.0
	maxPrice = 2000.0
)

// newProduct synthesizes a create payload. The numeric and time suffixes
// keep names unique enough to tell requests apart in traces.
func newProduct(rng *rand.Rand, now time.Time) client.NewProduct {
	term := productTerms[rng.Intn(len(productTerms))]
	desc := fmt.Sprintf("%s %s", term, descriptionSuffixes[rng.Intn(len(descriptionSuffixes))])
	price := minPrice + rng.Float64()*(maxPrice-minPrice)

	return client.NewProduct{
		Name:        fmt.Sprintf("%s %d - %s", term, 100+rng.Intn(900), now.Format("150405")),
		Description: desc,
		Price:       math.Round(price*100) / 100,
	}
}

func searchTerm(rng *rand.Rand) string {
	return searchTerms[rng.Intn(len(searchTerms))]
}

func dbErrorKind(rng *rand.Rand) string {
	return DBErrorKinds[rng.Intn(len(DBErrorKinds))]
}
