package businessflow

import (
	"context"
	"strings"

	"github.com/amirphl/specialist-referral/app/services"
	"github.com/amirphl/specialist-referral/models"
	"github.com/amirphl/specialist-referral/repository"
	"github.com/amirphl/specialist-referral/utils"
	"go.uber.org/zap"
)

// ContactSource names where a resolved phone came from
type ContactSource string

const (
	ContactSourceOrderHistory  ContactSource = "order_history"
	ContactSourceLookupService ContactSource = "lookup_service"
	ContactSourceDirectory     ContactSource = "directory"
	ContactSourceNone          ContactSource = "none"
)

// SpecialistIdentity is what the resolver knows about the person to notify
type SpecialistIdentity struct {
	Name           string
	Email          string
	DirectoryPhone string
}

// ResolvedContact is the chosen phone; Phone is empty when nothing deliverable was found
type ResolvedContact struct {
	Phone  string        `json:"phone"`
	Source ContactSource `json:"source"`
}

// Found reports whether a deliverable phone was resolved
func (r ResolvedContact) Found() bool { return r.Phone != "" }

// ContactResolver picks the most trustworthy phone for a specialist
type ContactResolver interface {
	Resolve(ctx context.Context, identity SpecialistIdentity) ResolvedContact
}

// ContactResolverImpl tries order history, then the lookup service, then the
// directory phone. Errors along the way are logged and skipped.
type ContactResolverImpl struct {
	orderRepo   repository.OrderRecordRepository
	lookup      services.OrderLookupService
	switchboard *utils.SwitchboardSet
	countryCode string
	logger      *zap.Logger
}

// NewContactResolver creates a resolver; lookup may be nil when no secondary service is configured
func NewContactResolver(
	orderRepo repository.OrderRecordRepository,
	lookup services.OrderLookupService,
	switchboard *utils.SwitchboardSet,
	countryCode string,
	logger *zap.Logger,
) ContactResolver {
	return &ContactResolverImpl{
		orderRepo:   orderRepo,
		lookup:      lookup,
		switchboard: switchboard,
		countryCode: countryCode,
		logger:      logger,
	}
}

func (r *ContactResolverImpl) Resolve(ctx context.Context, identity SpecialistIdentity) ResolvedContact {
	name := utils.StripHonorifics(identity.Name)
	email := strings.TrimSpace(identity.Email)

	result := r.resolve(ctx, name, email, identity.DirectoryPhone)
	services.ContactResolutionTotal.WithLabelValues(string(result.Source)).Inc()

	r.logger.Debug("Contact resolved",
		zap.String("specialist_name", name),
		zap.String("source", string(result.Source)),
		zap.Bool("found", result.Found()),
	)
	return result
}

func (r *ContactResolverImpl) resolve(ctx context.Context, name, email, directoryPhone string) ResolvedContact {
	if phone := r.fromOrderHistory(ctx, name, email); phone != "" {
		return ResolvedContact{Phone: phone, Source: ContactSourceOrderHistory}
	}
	if phone := r.fromLookupService(ctx, name, email); phone != "" {
		return ResolvedContact{Phone: phone, Source: ContactSourceLookupService}
	}
	if phone := r.usable(directoryPhone); phone != "" {
		return ResolvedContact{Phone: phone, Source: ContactSourceDirectory}
	}
	return ResolvedContact{Source: ContactSourceNone}
}

// fromOrderHistory matches by email when one is known, otherwise by name
func (r *ContactResolverImpl) fromOrderHistory(ctx context.Context, name, email string) string {
	if r.orderRepo == nil {
		return ""
	}

	var (
		order *models.OrderRecord
		err   error
	)
	if email != "" {
		order, err = r.orderRepo.LatestSettledByEmail(ctx, email)
	} else {
		order, err = r.orderRepo.LatestSettledByName(ctx, name)
	}
	if err != nil {
		r.logger.Warn("Order history lookup failed; falling through",
			zap.String("specialist_name", name),
			zap.Error(err),
		)
		return ""
	}
	if order == nil {
		return ""
	}
	return r.usable(utils.DerefString(order.CustomerPhone))
}

func (r *ContactResolverImpl) fromLookupService(ctx context.Context, name, email string) string {
	if r.lookup == nil {
		return ""
	}

	records, err := r.lookup.Lookup(ctx, name, email)
	if err != nil {
		r.logger.Warn("Secondary order lookup failed; falling through",
			zap.String("specialist_name", name),
			zap.Error(err),
		)
		return ""
	}

	latest := latestSettled(records)
	if latest == nil {
		return ""
	}
	return r.usable(latest.CustomerPhone)
}

// usable normalises the phone and rejects empty and switchboard numbers
func (r *ContactResolverImpl) usable(raw string) string {
	phone := utils.NormalizePhone(raw, r.countryCode)
	if phone == "" || r.switchboard.Contains(phone) {
		return ""
	}
	return phone
}

func latestSettled(records []services.OrderLookupRecord) *services.OrderLookupRecord {
	var latest *services.OrderLookupRecord
	for i := range records {
		rec := &records[i]
		if !models.OrderStatus(strings.ToLower(rec.Status)).IsSettled() {
			continue
		}
		if latest == nil || rec.CreatedAt.After(latest.CreatedAt) {
			latest = rec
		}
	}
	return latest
}
