//nolint:whitespace // can't make both editor and linter happy
package incident

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ohler55/ojg/oj"

	"github.com/stewardlog/incident-service-go/pkg/model"
	"github.com/stewardlog/incident-service-go/pkg/repository"
)

var selector = `select id, session_id, inc_type, contact_type, severity,
	severity_score, lap_number, session_time_ms, track_position,
	involved_drivers, status, created_at, updated_at from incident`

func Create(ctx context.Context, conn repository.Querier,
	incident *model.IncidentEvent,
) error {
	drivers, err := oj.Marshal(incident.InvolvedDrivers)
	if err != nil {
		return err
	}
	var contactType *string
	if incident.ContactType != "" {
		s := string(incident.ContactType)
		contactType = &s
	}
	_, err = conn.Exec(ctx, `
	insert into incident (
		id, session_id, inc_type, contact_type, severity, severity_score,
		lap_number, session_time_ms, track_position, involved_drivers,
		status, created_at, updated_at
	) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`,
		incident.ID, incident.SessionID, incident.Type, contactType,
		incident.Severity, incident.SeverityScore, incident.LapNumber,
		incident.SessionTimeMs, incident.TrackPosition, drivers,
		incident.Status, incident.CreatedAt, incident.UpdatedAt,
	)
	return err
}

func LoadByID(ctx context.Context, conn repository.Querier, id uuid.UUID) (
	*model.IncidentEvent, error,
) {
	row := conn.QueryRow(ctx, selector+" where id=$1", id)
	return readData(row)
}

func LoadBySessionID(ctx context.Context, conn repository.Querier,
	sessionID string,
) ([]*model.IncidentEvent, error) {
	rows, err := conn.Query(ctx,
		selector+" where session_id=$1 order by created_at asc", sessionID)
	if err != nil {
		return nil, err
	}
	ret := make([]*model.IncidentEvent, 0)
	for rows.Next() {
		item, err := readData(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	return ret, nil
}

// deletes all incidents of a session, returns number of rows deleted.
func DeleteBySessionID(ctx context.Context, conn repository.Querier,
	sessionID string,
) (int, error) {
	cmdTag, err := conn.Exec(ctx,
		"delete from incident where session_id=$1", sessionID)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

func readData(row pgx.Row) (*model.IncidentEvent, error) {
	var item model.IncidentEvent
	var contactType *string
	var drivers []byte
	if err := row.Scan(&item.ID, &item.SessionID, &item.Type, &contactType,
		&item.Severity, &item.SeverityScore, &item.LapNumber,
		&item.SessionTimeMs, &item.TrackPosition, &drivers,
		&item.Status, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	if contactType != nil {
		item.ContactType = model.ContactType(*contactType)
	}
	if err := oj.Unmarshal(drivers, &item.InvolvedDrivers); err != nil {
		return nil, err
	}
	return &item, nil
}

// Store adapts the repository to the pipeline's persistence collaborator.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Create(ctx context.Context, incident *model.IncidentEvent) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return Create(ctx, tx, incident)
	})
}
