package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/skimworks/skim/collector"
	"github.com/skimworks/skim/internal/retry"
	"github.com/skimworks/skim/types"
)

// EC2API is the slice of the EC2 client the collector uses
type EC2API interface {
	ec2.DescribeVolumesAPIClient
}

// VolumeCollector inventories EBS volumes
type VolumeCollector struct {
	base
	client EC2API
}

// NewVolumeCollector creates a collector for block volumes
func NewVolumeCollector(client EC2API, pacer Pacer, policy retry.Policy) *VolumeCollector {
	return &VolumeCollector{base: base{pacer: pacer, policy: policy}, client: client}
}

// Family implements collector.Collector
func (c *VolumeCollector) Family() types.Family { return types.FamilyBlockVolume }

// List implements collector.Collector
func (c *VolumeCollector) List(ctx context.Context, unit types.ScanUnit) ([]types.Resource, error) {
	var resources []types.Resource

	paginator := ec2.NewDescribeVolumesPaginator(c.client, &ec2.DescribeVolumesInput{})
	for paginator.HasMorePages() {
		err := c.call(ctx, unit.Account, "ec2", func() error {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, volume := range page.Volumes {
				resources = append(resources, buildVolumeResource(volume, unit))
			}
			return nil
		})
		if err != nil {
			return nil, collector.Classify(unit, fmt.Errorf("failed to list volumes: %w", err))
		}
	}
	return resources, nil
}

func buildVolumeResource(volume ec2types.Volume, unit types.ScanUnit) types.Resource {
	tags := convertEC2Tags(volume.Tags)

	name := aws.ToString(volume.VolumeId)
	if tags["Name"] != "" {
		name = tags["Name"]
	}

	return types.Resource{
		ID:        aws.ToString(volume.VolumeId),
		Family:    types.FamilyBlockVolume,
		Provider:  "aws",
		Account:   unit.Account,
		Region:    unit.Region,
		Name:      name,
		CreatedAt: aws.ToTime(volume.CreateTime),
		Tags:      tags,
		Attributes: map[string]types.Value{
			"volume_type":      types.String(string(volume.VolumeType)),
			"size_gb":          types.Number(float64(aws.ToInt32(volume.Size))),
			"iops":             types.Number(float64(aws.ToInt32(volume.Iops))),
			"throughput_mbps":  types.Number(float64(aws.ToInt32(volume.Throughput))),
			"attachment_count": types.Number(float64(len(volume.Attachments))),
			"state":            types.String(string(volume.State)),
			"encrypted":        types.Boolean(aws.ToBool(volume.Encrypted)),
		},
	}
}

func convertEC2Tags(tags []ec2types.Tag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	result := make(map[string]string, len(tags))
	for _, tag := range tags {
		result[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return result
}
