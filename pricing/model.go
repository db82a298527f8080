package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/skimworks/skim/types"
)

// Rate names looked up in the table per family
const (
	rateGBSecond         = "gb_second"
	rateControlPlaneHour = "control_plane_hour"
	rateBalancerHour     = "balancer_hour"
	rateVolumeGBMonth    = "volume_gb_month"
	rateIOPSMonth        = "iops_month"
	rateThroughputMonth  = "throughput_mbps_month"
	rateInstanceHour     = "instance_hour"
)

// Free baselines for threshold-excess charges on gp3 volumes
const (
	gp3FreeIOPS       = 3000
	gp3FreeThroughput = 125
)

// Estimate maps (family, attributes, table) to a monthly cost. Pure:
// identical inputs always produce identical output.
func Estimate(family types.Family, attrs map[string]types.Value, table *Table) (MonthlyCost, error) {
	switch family {
	case types.FamilyFunction:
		return estimateFunction(attrs, table)
	case types.FamilyBlockVolume:
		return estimateVolume(attrs, table)
	case types.FamilyContainerOrch:
		return estimateCluster(table)
	case types.FamilyLoadBalancer:
		return estimateBalancer(table)
	case types.FamilySearchDomain:
		return estimateSearchDomain(attrs, table)
	}
	return MonthlyCost{}, fmt.Errorf("no cost model for family %s", family)
}

// estimateFunction prices provisioned concurrency: GB-seconds held
// warm for the whole month, whether invoked or not
func estimateFunction(attrs map[string]types.Value, table *Table) (MonthlyCost, error) {
	cost := NewMonthlyCost()

	concurrency := numberAttr(attrs, "allocated_concurrency")
	if concurrency <= 0 {
		return cost, nil
	}
	memoryMB := numberAttr(attrs, "memory_mb")
	if memoryMB <= 0 {
		return cost, fmt.Errorf("function with provisioned concurrency missing memory_mb")
	}

	rate, err := table.Rate(types.FamilyFunction, rateGBSecond)
	if err != nil {
		return cost, err
	}

	gbSeconds := decimal.NewFromFloat(memoryMB).
		Div(decimal.NewFromInt(1024)).
		Mul(decimal.NewFromFloat(concurrency)).
		Mul(decimal.NewFromInt(SecondsPerMonth))
	cost.Set(ComponentProvisionedConcurrency, gbSeconds.Mul(rate))
	return cost, nil
}

// estimateVolume prices block storage: size-based charge plus
// threshold-excess charges for provisioned IOPS and throughput
func estimateVolume(attrs map[string]types.Value, table *Table) (MonthlyCost, error) {
	cost := NewMonthlyCost()

	volumeType := stringAttr(attrs, "volume_type")
	if volumeType == "" {
		return cost, fmt.Errorf("volume missing volume_type")
	}
	sizeGB := numberAttr(attrs, "size_gb")

	gbRate, err := table.Rate(types.FamilyBlockVolume, volumeType+"_"+rateVolumeGBMonth)
	if err != nil {
		return cost, err
	}
	cost.Set(ComponentStorageGB, decimal.NewFromFloat(sizeGB).Mul(gbRate))

	if volumeType == "gp3" {
		if err := addGP3Excess(cost, attrs, table); err != nil {
			return cost, err
		}
	}
	if volumeType == "io1" || volumeType == "io2" {
		iopsRate, err := table.Rate(types.FamilyBlockVolume, volumeType+"_"+rateIOPSMonth)
		if err != nil {
			return cost, err
		}
		cost.Set(ComponentProvisionedIOPS,
			decimal.NewFromFloat(numberAttr(attrs, "iops")).Mul(iopsRate))
	}
	return cost, nil
}

func addGP3Excess(cost MonthlyCost, attrs map[string]types.Value, table *Table) error {
	excessIOPS := numberAttr(attrs, "iops") - gp3FreeIOPS
	if excessIOPS > 0 {
		rate, err := table.Rate(types.FamilyBlockVolume, "gp3_"+rateIOPSMonth)
		if err != nil {
			return err
		}
		cost.Set(ComponentProvisionedIOPS, decimal.NewFromFloat(excessIOPS).Mul(rate))
	}

	excessThroughput := numberAttr(attrs, "throughput_mbps") - gp3FreeThroughput
	if excessThroughput > 0 {
		rate, err := table.Rate(types.FamilyBlockVolume, "gp3_"+rateThroughputMonth)
		if err != nil {
			return err
		}
		cost.Set(ComponentProvisionedThroughput, decimal.NewFromFloat(excessThroughput).Mul(rate))
	}
	return nil
}

// estimateCluster prices the flat control-plane charge; node costs
// bill under their own families
func estimateCluster(table *Table) (MonthlyCost, error) {
	cost := NewMonthlyCost()
	rate, err := table.Rate(types.FamilyContainerOrch, rateControlPlaneHour)
	if err != nil {
		return cost, err
	}
	cost.Set(ComponentControlPlaneHours, rate.Mul(decimal.NewFromInt(HoursPerMonth)))
	return cost, nil
}

func estimateBalancer(table *Table) (MonthlyCost, error) {
	cost := NewMonthlyCost()
	rate, err := table.Rate(types.FamilyLoadBalancer, rateBalancerHour)
	if err != nil {
		return cost, err
	}
	cost.Set(ComponentLoadBalancerHours, rate.Mul(decimal.NewFromInt(HoursPerMonth)))
	return cost, nil
}

// estimateSearchDomain prices data nodes per instance-hour plus
// attached storage
func estimateSearchDomain(attrs map[string]types.Value, table *Table) (MonthlyCost, error) {
	cost := NewMonthlyCost()

	instanceType := stringAttr(attrs, "instance_type")
	count := numberAttr(attrs, "instance_count")
	if instanceType == "" || count <= 0 {
		return cost, fmt.Errorf("search domain missing instance_type or instance_count")
	}

	hourRate, err := table.Rate(types.FamilySearchDomain, rateInstanceHour+"_"+instanceType)
	if err != nil {
		return cost, err
	}
	cost.Set(ComponentInstanceHours,
		hourRate.Mul(decimal.NewFromFloat(count)).Mul(decimal.NewFromInt(HoursPerMonth)))

	if volumeGB := numberAttr(attrs, "volume_gb"); volumeGB > 0 {
		gbRate, err := table.Rate(types.FamilySearchDomain, rateVolumeGBMonth)
		if err != nil {
			return cost, err
		}
		cost.Set(ComponentStorageGB,
			decimal.NewFromFloat(volumeGB).Mul(decimal.NewFromFloat(count)).Mul(gbRate))
	}
	return cost, nil
}

func numberAttr(attrs map[string]types.Value, key string) float64 {
	if v, ok := attrs[key]; ok {
		if n, ok := v.AsNumber(); ok {
			return n
		}
	}
	return 0
}

func stringAttr(attrs map[string]types.Value, key string) string {
	if v, ok := attrs[key]; ok {
		if s, ok := v.AsString(); ok {
			return s
		}
	}
	return ""
}
