package backend

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/route53"
	"github.com/leasestore/leasestore/pkg/db"
)

// Publisher maintains a forward-DNS view of the active leases. It is
// best effort. The store remains the source of truth and lease
// operations never fail because a record could not be published.
type Publisher interface {
	Publish(entry *db.LeaseEntry) error
	Unpublish(entry *db.LeaseEntry) error
}

type noopPublisher struct{}

// NewNoopPublisher returns a Publisher that does nothing. It is the
// default when no hosted zone is configured.
func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(*db.LeaseEntry) error   { return nil }
func (noopPublisher) Unpublish(*db.LeaseEntry) error { return nil }

type route53Publisher struct {
	baseDomain       string
	ZoneID           string
	recordTTLSeconds int64

	Svc *route53.Route53
}

// NewRoute53Publisher upserts an A record per active lease into the
// given hosted zone. An empty domain falls back to the zone's name.
func NewRoute53Publisher(zoneID, domain string, recordTTLSecs int64) (Publisher, error) {
	s, err := session.NewSession()
	if err != nil {
		return nil, err
	}

	svc := route53.New(s, &aws.Config{
		MaxRetries: aws.Int(3),
	})

	z, err := svc.GetHostedZone(&route53.GetHostedZoneInput{
		Id: aws.String(zoneID),
	})
	if err != nil {
		return nil, err
	}

	if domain == "" {
		domain = strings.TrimSuffix(aws.StringValue(z.HostedZone.Name), ".")
	}

	return &route53Publisher{
		baseDomain:       domain,
		ZoneID:           aws.StringValue(z.HostedZone.Id),
		Svc:              svc,
		recordTTLSeconds: recordTTLSecs,
	}, nil
}

func (p *route53Publisher) Publish(entry *db.LeaseEntry) error {
	return p.change("UPSERT", entry)
}

func (p *route53Publisher) Unpublish(entry *db.LeaseEntry) error {
	return p.change("DELETE", entry)
}

func (p *route53Publisher) change(action string, entry *db.LeaseEntry) error {
	fqdn := p.fqdn(entry)
	rrs := &route53.ResourceRecordSet{
		Type: aws.String("A"),
		Name: aws.String(fqdn),
		TTL:  aws.Int64(p.recordTTLSeconds),
		ResourceRecords: []*route53.ResourceRecord{
			{Value: aws.String(entry.IPAddr)},
		},
	}

	rrsInput := route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(p.ZoneID),
		ChangeBatch: &route53.ChangeBatch{
			Changes: []*route53.Change{
				{
					Action:            aws.String(action),
					ResourceRecordSet: rrs,
				},
			},
		},
	}

	if _, err := p.Svc.ChangeResourceRecordSets(&rrsInput); err != nil {
		return fmt.Errorf("failed to %v route53 record %v with error %v", strings.ToLower(action), fqdn, err)
	}
	return nil
}

// fqdn names the record after the client-reported hostname, falling
// back to a label derived from the hardware address.
func (p *route53Publisher) fqdn(entry *db.LeaseEntry) string {
	label := entry.Hostname
	if label == "" {
		label = strings.ReplaceAll(entry.MacAddr, ":", "-")
	}
	return label + "." + p.baseDomain
}
