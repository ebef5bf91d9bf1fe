package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/safesteps/internal/apperr"
	"github.com/shenikar/safesteps/internal/models"
)

// ReportChannel - канал LISTEN/NOTIFY, в который триггер пишет id измененного отчета
const ReportChannel = "report_changes"

type Postgres struct {
	db *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

const reportColumns = `
	id, category, description, severity,
	ST_Y(location::geometry), ST_X(location::geometry), accuracy_meters,
	cell_row, cell_col, image_ref, reporter_id, anonymous,
	verification, version, created_at, updated_at`

// AppendReport создает отчет; повтор с тем же id игнорируется
func (p *Postgres) AppendReport(ctx context.Context, r *models.IncidentReport) error {
	query := `
		INSERT INTO incident_reports (
			id, category, description, severity, location, accuracy_meters,
			cell_row, cell_col, image_ref, reporter_id, anonymous,
			verification, version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			CASE WHEN $5::float8 IS NULL THEN NULL ELSE ST_SetSRID(ST_MakePoint($5, $6), 4326)::geography END,
			$7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
		ON CONFLICT (id) DO NOTHING;
	`
	var lon, lat, acc *float64
	if r.Coordinate != nil {
		lon, lat, acc = &r.Coordinate.Longitude, &r.Coordinate.Latitude, r.Coordinate.Accuracy
	}
	var row, col *int32
	if r.CellID != nil {
		row, col = &r.CellID.Row, &r.CellID.Col
	}
	_, err := p.db.Exec(ctx, query,
		r.ID, r.Category, r.Description, r.Severity,
		lon, lat, acc,
		row, col, nullable(r.ImageRef), nullable(r.ReporterID), r.Anonymous,
		r.Verification, r.Version, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return classify("reports.append", err)
	}
	return nil
}

func (p *Postgres) GetReport(ctx context.Context, id string) (*models.IncidentReport, error) {
	query := `SELECT ` + reportColumns + ` FROM incident_reports WHERE id = $1;`
	r, err := scanReport(p.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("report %s not found", id)
		}
		return nil, classify("reports.get", err)
	}
	return r, nil
}

func (p *Postgres) QueryByCell(ctx context.Context, cell models.CellID, since time.Time) ([]*models.IncidentReport, error) {
	query := `SELECT ` + reportColumns + `
		FROM incident_reports
		WHERE cell_row = $1 AND cell_col = $2 AND created_at >= $3
		ORDER BY created_at, id;`
	return p.queryReports(ctx, "reports.query_by_cell", query, cell.Row, cell.Col, since)
}

func (p *Postgres) QuerySince(ctx context.Context, since time.Time) ([]*models.IncidentReport, error) {
	query := `SELECT ` + reportColumns + `
		FROM incident_reports
		WHERE created_at >= $1
		ORDER BY created_at, id;`
	return p.queryReports(ctx, "reports.query_since", query, since)
}

// SetVerification меняет статус проверки и увеличивает версию отчета
func (p *Postgres) SetVerification(ctx context.Context, id string, v models.Verification) (*models.IncidentReport, error) {
	query := `
		UPDATE incident_reports SET
			verification = $2,
			version = CASE WHEN verification = $2 THEN version ELSE version + 1 END,
			updated_at = CASE WHEN verification = $2 THEN updated_at ELSE NOW() END
		WHERE id = $1
		RETURNING ` + reportColumns + `;`
	r, err := scanReport(p.db.QueryRow(ctx, query, id, v))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("report %s not found", id)
		}
		return nil, classify("reports.set_verification", err)
	}
	return r, nil
}

// WatchReports слушает уведомления триггера и передает в fn актуальную версию отчета.
// После LISTEN догружает отчеты с updated_at >= since, чтобы не терять изменения за время
// переподключения. Возвращает ошибку при потере соединения; переподключение выполняет вызывающий.
func (p *Postgres) WatchReports(ctx context.Context, since time.Time, fn func(*models.IncidentReport)) error {
	conn, err := p.db.Acquire(ctx)
	if err != nil {
		return classify("reports.watch", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+ReportChannel); err != nil {
		return classify("reports.watch", err)
	}

	backlog, err := p.queryReports(ctx, "reports.watch_backlog", `SELECT `+reportColumns+`
		FROM incident_reports
		WHERE updated_at >= $1
		ORDER BY updated_at, id;`, since)
	if err != nil {
		return err
	}
	for _, r := range backlog {
		fn(r)
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return classify("reports.watch", err)
		}
		r, err := p.GetReport(ctx, n.Payload)
		if err != nil {
			if apperr.IsNotFound(err) {
				continue
			}
			return err
		}
		fn(r)
	}
}

func (p *Postgres) CreateAlert(ctx context.Context, a *models.SOSAlert) error {
	deliveries, err := json.Marshal(a.Deliveries)
	if err != nil {
		return fmt.Errorf("repository: marshal deliveries: %w", err)
	}
	query := `
		INSERT INTO sos_alerts (id, owner_id, location, location_status, created_at, deliveries)
		VALUES (
			$1, $2,
			CASE WHEN $3::float8 IS NULL THEN NULL ELSE ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography END,
			$5, $6, $7
		)
		ON CONFLICT (id) DO NOTHING;
	`
	var lon, lat *float64
	if a.Coordinate != nil {
		lon, lat = &a.Coordinate.Longitude, &a.Coordinate.Latitude
	}
	if _, err := p.db.Exec(ctx, query, a.ID, a.OwnerID, lon, lat, a.LocationStatus, a.CreatedAt, deliveries); err != nil {
		return classify("alerts.create", err)
	}
	return nil
}

const alertColumns = `
	id, owner_id, ST_Y(location::geometry), ST_X(location::geometry),
	location_status, created_at, finalized_at, deliveries`

func (p *Postgres) GetAlert(ctx context.Context, id string) (*models.SOSAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM sos_alerts WHERE id = $1;`
	a, err := scanAlert(p.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("alert %s not found", id)
		}
		return nil, classify("alerts.get", err)
	}
	return a, nil
}

func (p *Postgres) UpdateDelivery(ctx context.Context, alertID string, index int, rec models.DeliveryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("repository: marshal delivery: %w", err)
	}
	query := `
		UPDATE sos_alerts
		SET deliveries = jsonb_set(deliveries, ARRAY[$2::text], $3::jsonb)
		WHERE id = $1;
	`
	tag, err := p.db.Exec(ctx, query, alertID, strconv.Itoa(index), data)
	if err != nil {
		return classify("alerts.update_delivery", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("alert %s not found", alertID)
	}
	return nil
}

func (p *Postgres) FinalizeAlert(ctx context.Context, a *models.SOSAlert) error {
	deliveries, err := json.Marshal(a.Deliveries)
	if err != nil {
		return fmt.Errorf("repository: marshal deliveries: %w", err)
	}
	query := `UPDATE sos_alerts SET deliveries = $2, finalized_at = $3 WHERE id = $1;`
	tag, err := p.db.Exec(ctx, query, a.ID, deliveries, a.FinalizedAt)
	if err != nil {
		return classify("alerts.finalize", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("alert %s not found", a.ID)
	}
	return nil
}

func (p *Postgres) ListOpenAlerts(ctx context.Context) ([]*models.SOSAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM sos_alerts WHERE finalized_at IS NULL ORDER BY created_at;`
	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, classify("alerts.list_open", err)
	}
	defer rows.Close()

	var alerts []*models.SOSAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, classify("alerts.list_open", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("alerts.list_open", err)
	}
	return alerts, nil
}

func (p *Postgres) ListTrustedContacts(ctx context.Context, ownerID string) ([]models.TrustedContact, error) {
	query := `SELECT owner_id, name, phone FROM trusted_contacts WHERE owner_id = $1 ORDER BY position;`
	rows, err := p.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, classify("contacts.list", err)
	}
	defer rows.Close()

	var contacts []models.TrustedContact
	for rows.Next() {
		var c models.TrustedContact
		if err := rows.Scan(&c.OwnerID, &c.Name, &c.Phone); err != nil {
			return nil, classify("contacts.list", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("contacts.list", err)
	}
	return contacts, nil
}

// ReplaceTrustedContacts заменяет список контактов одной транзакцией
func (p *Postgres) ReplaceTrustedContacts(ctx context.Context, ownerID string, contacts []models.TrustedContact) error {
	err := pgx.BeginFunc(ctx, p.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM trusted_contacts WHERE owner_id = $1;`, ownerID); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for i, c := range contacts {
			batch.Queue(`INSERT INTO trusted_contacts (owner_id, position, name, phone) VALUES ($1, $2, $3, $4);`,
				ownerID, i, c.Name, c.Phone)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return classify("contacts.replace", err)
	}
	return nil
}

func (p *Postgres) queryReports(ctx context.Context, op, query string, args ...any) ([]*models.IncidentReport, error) {
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var reports []*models.IncidentReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return reports, nil
}

func scanReport(row pgx.Row) (*models.IncidentReport, error) {
	var (
		r             models.IncidentReport
		lat, lon, acc *float64
		cellRow, col  *int32
		image, author *string
	)
	err := row.Scan(
		&r.ID, &r.Category, &r.Description, &r.Severity,
		&lat, &lon, &acc,
		&cellRow, &col, &image, &author, &r.Anonymous,
		&r.Verification, &r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat != nil && lon != nil {
		r.Coordinate = &models.Coordinate{Latitude: *lat, Longitude: *lon, Accuracy: acc}
	}
	if cellRow != nil && col != nil {
		r.CellID = &models.CellID{Row: *cellRow, Col: *col}
	}
	if image != nil {
		r.ImageRef = *image
	}
	if author != nil {
		r.ReporterID = *author
	}
	return &r, nil
}

func scanAlert(row pgx.Row) (*models.SOSAlert, error) {
	var (
		a          models.SOSAlert
		lat, lon   *float64
		deliveries []byte
	)
	if err := row.Scan(&a.ID, &a.OwnerID, &lat, &lon, &a.LocationStatus, &a.CreatedAt, &a.FinalizedAt, &deliveries); err != nil {
		return nil, err
	}
	if lat != nil && lon != nil {
		a.Coordinate = &models.Coordinate{Latitude: *lat, Longitude: *lon}
	}
	if err := json.Unmarshal(deliveries, &a.Deliveries); err != nil {
		return nil, fmt.Errorf("repository: unmarshal deliveries: %w", err)
	}
	return &a, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// classify раскладывает ошибки pgx по классам: обрывы соединения, таймауты,
// конфликты сериализации и нехватка ресурсов считаются временными
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return apperr.Permanent(op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return apperr.Transient(op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "53"):
			return apperr.Transient(op, err)
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "57P01", pgErr.Code == "57P03":
			return apperr.Transient(op, err)
		case pgErr.Code == "23505":
			return apperr.InvalidInput("%s: duplicate key", op)
		case pgErr.Code == "22P02":
			return apperr.InvalidInput("%s: malformed value", op)
		}
		return apperr.Permanent(op, err)
	}

	// ошибки без кода сервера: обрыв соединения, отказ в подключении
	return apperr.Transient(op, err)
}
