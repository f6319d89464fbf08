package listing

import "github.com/yourorg/pet-board/internal/canon"

// GenericFallback is used when a listing has no photo and its species has no stock image.
const GenericFallback = "https://images.unsplash.com/photo-1450778869180-41d0601e046e?w=800"

// speciesFallbacks holds one stock photo per known species.
var speciesFallbacks = map[string]string{
	"кошка":    "https://images.unsplash.com/photo-1514888286974-6c03e2ca1dba?w=800",
	"собака":   "https://images.unsplash.com/photo-1543466835-00a7907e9de1?w=800",
	"птица":    "https://images.unsplash.com/photo-1552728089-57bdde30beb3?w=800",
	"кролик":   "https://images.unsplash.com/photo-1585110396000-c9ffd4e4b308?w=800",
	"хомяк":    "https://images.unsplash.com/photo-1425082661705-1834bfd09dca?w=800",
	"черепаха": "https://images.unsplash.com/photo-1437622368342-7a3d73a34c8f?w=800",
	"хорек":    "https://images.unsplash.com/photo-1591561582301-7ce6588cc286?w=800",
}

// FallbackPhoto returns the stock image for a species, or the generic one.
func FallbackPhoto(kind string) string {
	if u, ok := speciesFallbacks[canon.Kind(kind)]; ok {
		return u
	}
	return GenericFallback
}
