package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shenikar/safesteps/internal/apperr"
	"github.com/shenikar/safesteps/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionReports  = "incident_reports"
	collectionAlerts   = "sos_alerts"
	collectionUsers    = "users"
	collectionContacts = "trusted_contacts"
)

// Firestore - хранилище в Cloud Firestore, совместимое с коллекцией incident_reports мобильного клиента
type Firestore struct {
	db *firestore.Client
}

var _ Store = (*Firestore)(nil)

func NewFirestore(db *firestore.Client) *Firestore {
	return &Firestore{db: db}
}

type reportDoc struct {
	ID           string    `firestore:"id"`
	Category     string    `firestore:"type"`
	Description  string    `firestore:"description"`
	Severity     string    `firestore:"severity"`
	Latitude     *float64  `firestore:"latitude"`
	Longitude    *float64  `firestore:"longitude"`
	Accuracy     *float64  `firestore:"accuracy,omitempty"`
	Cell         string    `firestore:"cell,omitempty"`
	ImageRef     string    `firestore:"image_ref,omitempty"`
	ReporterID   string    `firestore:"reporter_id,omitempty"`
	Anonymous    bool      `firestore:"anonymous"`
	Verification string    `firestore:"verification"`
	Verified     bool      `firestore:"verified"`
	Version      int64     `firestore:"version"`
	CreatedAt    time.Time `firestore:"timestamp"`
	UpdatedAt    time.Time `firestore:"updated_at"`
}

func toReportDoc(r *models.IncidentReport) reportDoc {
	d := reportDoc{
		ID:           r.ID,
		Category:     string(r.Category),
		Description:  r.Description,
		Severity:     string(r.Severity),
		ImageRef:     r.ImageRef,
		ReporterID:   r.ReporterID,
		Anonymous:    r.Anonymous,
		Verification: string(r.Verification),
		Verified:     r.Verification == models.VerificationVerified,
		Version:      r.Version,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.Coordinate != nil {
		lat, lon := r.Coordinate.Latitude, r.Coordinate.Longitude
		d.Latitude, d.Longitude, d.Accuracy = &lat, &lon, r.Coordinate.Accuracy
	}
	if r.CellID != nil {
		d.Cell = r.CellID.String()
	}
	return d
}

func (d reportDoc) toModel() (*models.IncidentReport, error) {
	r := &models.IncidentReport{
		ID:           d.ID,
		Category:     models.Category(d.Category),
		Description:  d.Description,
		Severity:     models.Severity(d.Severity),
		ImageRef:     d.ImageRef,
		ReporterID:   d.ReporterID,
		Anonymous:    d.Anonymous,
		Verification: models.Verification(d.Verification),
		Version:      d.Version,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	// документы, созданные мобильным клиентом, содержат только флаг verified
	if r.Verification == "" {
		r.Verification = models.VerificationPending
		if d.Verified {
			r.Verification = models.VerificationVerified
		}
	}
	if r.Version == 0 {
		r.Version = 1
	}
	if d.Latitude != nil && d.Longitude != nil {
		r.Coordinate = &models.Coordinate{Latitude: *d.Latitude, Longitude: *d.Longitude, Accuracy: d.Accuracy}
	}
	if d.Cell != "" {
		id, err := models.ParseCellID(d.Cell)
		if err != nil {
			return nil, fmt.Errorf("repository: report %s: %w", d.ID, err)
		}
		r.CellID = &id
	}
	return r, nil
}

func (f *Firestore) AppendReport(ctx context.Context, r *models.IncidentReport) error {
	_, err := f.db.Collection(collectionReports).Doc(r.ID).Create(ctx, toReportDoc(r))
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return classifyGRPC("reports.append", err)
	}
	return nil
}

func (f *Firestore) GetReport(ctx context.Context, id string) (*models.IncidentReport, error) {
	snap, err := f.db.Collection(collectionReports).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperr.NotFound("report %s not found", id)
		}
		return nil, classifyGRPC("reports.get", err)
	}
	return decodeReport(snap)
}

func (f *Firestore) QueryByCell(ctx context.Context, cell models.CellID, since time.Time) ([]*models.IncidentReport, error) {
	q := f.db.Collection(collectionReports).
		Where("cell", "==", cell.String()).
		Where("timestamp", ">=", since).
		OrderBy("timestamp", firestore.Asc)
	return f.queryReports(ctx, "reports.query_by_cell", q)
}

func (f *Firestore) QuerySince(ctx context.Context, since time.Time) ([]*models.IncidentReport, error) {
	q := f.db.Collection(collectionReports).
		Where("timestamp", ">=", since).
		OrderBy("timestamp", firestore.Asc)
	return f.queryReports(ctx, "reports.query_since", q)
}

// SetVerification меняет статус в транзакции, чтобы версия росла без пропусков
func (f *Firestore) SetVerification(ctx context.Context, id string, v models.Verification) (*models.IncidentReport, error) {
	ref := f.db.Collection(collectionReports).Doc(id)
	var out *models.IncidentReport

	err := f.db.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		r, err := decodeReport(snap)
		if err != nil {
			return err
		}
		if r.Verification == v {
			out = r
			return nil
		}
		r.Verification = v
		r.Version++
		r.UpdatedAt = time.Now().UTC()
		out = r
		return tx.Update(ref, []firestore.Update{
			{Path: "verification", Value: string(v)},
			{Path: "verified", Value: v == models.VerificationVerified},
			{Path: "version", Value: r.Version},
			{Path: "updated_at", Value: r.UpdatedAt},
		})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperr.NotFound("report %s not found", id)
		}
		return nil, classifyGRPC("reports.set_verification", err)
	}
	return out, nil
}

// WatchReports подписывается на изменения коллекции. Первый снимок содержит все отчеты
// с updated_at >= since, дальше приходят только изменения.
func (f *Firestore) WatchReports(ctx context.Context, since time.Time, fn func(*models.IncidentReport)) error {
	it := f.db.Collection(collectionReports).
		Where("updated_at", ">=", since.UTC()).
		Snapshots(ctx)
	defer it.Stop()

	for {
		snap, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return nil
			}
			return classifyGRPC("reports.watch", err)
		}
		for _, change := range snap.Changes {
			if change.Kind == firestore.DocumentRemoved {
				continue
			}
			r, err := decodeReport(change.Doc)
			if err != nil {
				continue
			}
			fn(r)
		}
	}
}

type alertDoc struct {
	ID             string                           `firestore:"id"`
	OwnerID        string                           `firestore:"owner_id"`
	Coordinate     *models.Coordinate               `firestore:"coordinate,omitempty"`
	LocationStatus string                           `firestore:"location_status"`
	CreatedAt      time.Time                        `firestore:"created_at"`
	Finalized      bool                             `firestore:"finalized"`
	FinalizedAt    *time.Time                       `firestore:"finalized_at,omitempty"`
	Deliveries     map[string]models.DeliveryRecord `firestore:"deliveries"`
}

// доставки хранятся картой по индексу, чтобы обновлять одну запись без чтения документа
func toAlertDoc(a *models.SOSAlert) alertDoc {
	d := alertDoc{
		ID:             a.ID,
		OwnerID:        a.OwnerID,
		Coordinate:     a.Coordinate,
		LocationStatus: string(a.LocationStatus),
		CreatedAt:      a.CreatedAt,
		Finalized:      a.FinalizedAt != nil,
		FinalizedAt:    a.FinalizedAt,
		Deliveries:     make(map[string]models.DeliveryRecord, len(a.Deliveries)),
	}
	for i, rec := range a.Deliveries {
		d.Deliveries[strconv.Itoa(i)] = rec
	}
	return d
}

func (d alertDoc) toModel() *models.SOSAlert {
	a := &models.SOSAlert{
		ID:             d.ID,
		OwnerID:        d.OwnerID,
		Coordinate:     d.Coordinate,
		LocationStatus: models.LocationStatus(d.LocationStatus),
		CreatedAt:      d.CreatedAt,
		FinalizedAt:    d.FinalizedAt,
	}
	keys := make([]int, 0, len(d.Deliveries))
	for k := range d.Deliveries {
		if i, err := strconv.Atoi(k); err == nil {
			keys = append(keys, i)
		}
	}
	sort.Ints(keys)
	for _, i := range keys {
		a.Deliveries = append(a.Deliveries, d.Deliveries[strconv.Itoa(i)])
	}
	return a
}

func (f *Firestore) CreateAlert(ctx context.Context, a *models.SOSAlert) error {
	_, err := f.db.Collection(collectionAlerts).Doc(a.ID).Create(ctx, toAlertDoc(a))
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return classifyGRPC("alerts.create", err)
	}
	return nil
}

func (f *Firestore) GetAlert(ctx context.Context, id string) (*models.SOSAlert, error) {
	snap, err := f.db.Collection(collectionAlerts).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperr.NotFound("alert %s not found", id)
		}
		return nil, classifyGRPC("alerts.get", err)
	}
	var d alertDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("repository: decode alert %s: %w", id, err)
	}
	return d.toModel(), nil
}

func (f *Firestore) UpdateDelivery(ctx context.Context, alertID string, index int, rec models.DeliveryRecord) error {
	_, err := f.db.Collection(collectionAlerts).Doc(alertID).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"deliveries", strconv.Itoa(index)}, Value: rec},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return apperr.NotFound("alert %s not found", alertID)
		}
		return classifyGRPC("alerts.update_delivery", err)
	}
	return nil
}

func (f *Firestore) FinalizeAlert(ctx context.Context, a *models.SOSAlert) error {
	d := toAlertDoc(a)
	_, err := f.db.Collection(collectionAlerts).Doc(a.ID).Update(ctx, []firestore.Update{
		{Path: "deliveries", Value: d.Deliveries},
		{Path: "finalized", Value: true},
		{Path: "finalized_at", Value: d.FinalizedAt},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return apperr.NotFound("alert %s not found", a.ID)
		}
		return classifyGRPC("alerts.finalize", err)
	}
	return nil
}

func (f *Firestore) ListOpenAlerts(ctx context.Context) ([]*models.SOSAlert, error) {
	iter := f.db.Collection(collectionAlerts).Where("finalized", "==", false).Documents(ctx)
	defer iter.Stop()

	var alerts []*models.SOSAlert
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyGRPC("alerts.list_open", err)
		}
		var d alertDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("repository: decode alert %s: %w", doc.Ref.ID, err)
		}
		alerts = append(alerts, d.toModel())
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].CreatedAt.Before(alerts[j].CreatedAt) })
	return alerts, nil
}

type contactDoc struct {
	Position int    `firestore:"position"`
	Name     string `firestore:"name"`
	Phone    string `firestore:"phone"`
}

func (f *Firestore) contacts(ownerID string) *firestore.CollectionRef {
	return f.db.Collection(collectionUsers).Doc(ownerID).Collection(collectionContacts)
}

func (f *Firestore) ListTrustedContacts(ctx context.Context, ownerID string) ([]models.TrustedContact, error) {
	iter := f.contacts(ownerID).OrderBy("position", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []models.TrustedContact
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyGRPC("contacts.list", err)
		}
		var d contactDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("repository: decode contact %s: %w", doc.Ref.ID, err)
		}
		out = append(out, models.TrustedContact{OwnerID: ownerID, Name: d.Name, Phone: d.Phone})
	}
	return out, nil
}

func (f *Firestore) ReplaceTrustedContacts(ctx context.Context, ownerID string, contacts []models.TrustedContact) error {
	col := f.contacts(ownerID)
	err := f.db.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := tx.Documents(col).GetAll()
		if err != nil {
			return err
		}
		for _, doc := range existing {
			if err := tx.Delete(doc.Ref); err != nil {
				return err
			}
		}
		for i, c := range contacts {
			ref := col.Doc(strconv.Itoa(i))
			if err := tx.Set(ref, contactDoc{Position: i, Name: c.Name, Phone: c.Phone}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return classifyGRPC("contacts.replace", err)
	}
	return nil
}

func (f *Firestore) queryReports(ctx context.Context, op string, q firestore.Query) ([]*models.IncidentReport, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*models.IncidentReport
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyGRPC(op, err)
		}
		r, err := decodeReport(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func decodeReport(snap *firestore.DocumentSnapshot) (*models.IncidentReport, error) {
	var d reportDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("repository: decode report %s: %w", snap.Ref.ID, err)
	}
	if d.ID == "" {
		d.ID = snap.Ref.ID
	}
	return d.toModel()
}

func classifyGRPC(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Transient(op, err)
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted, codes.Internal, codes.Unknown:
		return apperr.Transient(op, err)
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return apperr.InvalidInput("%s: %v", op, err)
	}
	return apperr.Permanent(op, err)
}
