package types

import "time"

// Family identifies a resource family the engine knows how to scan
type Family string

const (
	FamilyFunction      Family = "serverless_function"
	FamilySearchDomain  Family = "search_domain"
	FamilyContainerOrch Family = "container_cluster"
	FamilyLoadBalancer  Family = "load_balancer"
	FamilyBlockVolume   Family = "block_volume"
)

// KnownFamilies lists every family with a collector
func KnownFamilies() []Family {
	return []Family{
		FamilyFunction,
		FamilySearchDomain,
		FamilyContainerOrch,
		FamilyLoadBalancer,
		FamilyBlockVolume,
	}
}

// Resource is an immutable snapshot of one provider-side object,
// taken once per scan and discarded after findings are assembled
type Resource struct {
	ID         string            `json:"id"`
	Family     Family            `json:"family"`
	Provider   string            `json:"provider"`
	Account    string            `json:"account"`
	Region     string            `json:"region"`
	Name       string            `json:"name,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	Attributes map[string]Value  `json:"attributes,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// AgeDays returns whole days since creation, never negative
func (r Resource) AgeDays(now time.Time) int {
	if r.CreatedAt.IsZero() || now.Before(r.CreatedAt) {
		return 0
	}
	return int(now.Sub(r.CreatedAt).Hours() / 24)
}

// Attr looks up an attribute by key
func (r Resource) Attr(key string) (Value, bool) {
	v, ok := r.Attributes[key]
	return v, ok
}

// BuildResourceMap converts a slice of resources to a map keyed by ID
func BuildResourceMap(resources []Resource) map[string]Resource {
	resourceMap := make(map[string]Resource, len(resources))
	for _, resource := range resources {
		resourceMap[resource.ID] = resource
	}
	return resourceMap
}
