package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/agendavet-scheduling/internal/appointment"
	"github.com/hackgods/agendavet-scheduling/internal/clinic"
	"github.com/hackgods/agendavet-scheduling/internal/db"
	"github.com/hackgods/agendavet-scheduling/internal/logging"
)

//go:embed schema.sql
var schema string

const (
	userCount   = 25
	horizonDays = 14
)

type serviceSeed struct {
	name     string
	duration *int
}

func minutes(n int) *int { return &n }

var catalog = []serviceSeed{
	{"Consulta clínica", minutes(30)},
	{"Vacinação", minutes(15)},
	{"Banho e tosa", minutes(60)},
	{"Castração", minutes(90)},
	{"Exame de sangue", minutes(15)},
	{"Retorno", nil},
}

var (
	petTypes      = []string{"dog", "cat", "bird", "rabbit"}
	veterinarians = []string{"Dra. Ana Souza", "Dr. Bruno Lima", "Dra. Carla Mendes"}
	reasons       = []string{"vacina anual", "check-up", "coceira persistente", "retorno pós-cirúrgico", "vômitos", "banho mensal"}
)

func main() {
	logger := logging.New(os.Getenv("APP_ENV"), "info").With().Str("service", "seed").Logger()
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{ApplicationName: "agendavet-seed", MaxConns: 1, PingTimeout: 5 * time.Second})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, schema); err != nil {
		logger.Fatal().Err(err).Msg("apply schema")
	}

	faker := gofakeit.New(0)
	s := seeder{pool: pool, faker: faker, clinic: clinic.Default(), logger: logger}

	services, err := s.seedServices(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed services")
	}
	pets, err := s.seedPets(ctx, userCount)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed pets")
	}
	if err := s.seedRequests(ctx, pets, services); err != nil {
		logger.Fatal().Err(err).Msg("seed appointment requests")
	}

	logger.Info().Msg("seed complete")
}

type seeder struct {
	pool   *pgxpool.Pool
	faker  *gofakeit.Faker
	clinic clinic.Config
	logger zerolog.Logger
}

type seededPet struct {
	id     uuid.UUID
	userID string
}

func (s *seeder) seedServices(ctx context.Context) ([]uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, len(catalog))
	for _, svc := range catalog {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO services (id, name, duration_minutes)
			VALUES ($1, $2, $3)
		`, id, svc.name, svc.duration)
		if err != nil {
			return nil, fmt.Errorf("insert service %s: %w", svc.name, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.logger.Info().Int("count", len(ids)).Msg("services seeded")
	return ids, nil
}

func (s *seeder) seedPets(ctx context.Context, users int) ([]seededPet, error) {
	var pets []seededPet
	var rows [][]any
	now := time.Now()

	for u := 0; u < users; u++ {
		userID := uuid.NewString()
		for n := s.faker.Number(1, 3); n > 0; n-- {
			id := uuid.New()
			breed := s.faker.Animal()
			age := s.faker.Number(0, 16)
			weight := s.faker.Float64Range(0.5, 45)
			rows = append(rows, []any{id, userID, s.faker.PetName(), s.faker.RandomString(petTypes), &breed, &age, weight, now, now})
			pets = append(pets, seededPet{id: id, userID: userID})
		}
	}

	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{"pets"},
		[]string{"id", "user_id", "name", "type", "breed", "age", "weight", "created_at", "updated_at"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return nil, fmt.Errorf("copy pets: %w", err)
	}
	s.logger.Info().Int64("count", n).Int("users", users).Msg("pets seeded")
	return pets, nil
}

// seedRequests gives each pet up to two requests in the coming days. Confirmed
// ones get a slot on the 15 minute grid inside working hours. COPY uses the
// binary protocol, so values carry their column types.
func (s *seeder) seedRequests(ctx context.Context, pets []seededPet, services []uuid.UUID) error {
	statuses := []appointment.Status{appointment.StatusPending, appointment.StatusConfirmed, appointment.StatusConfirmed, appointment.StatusCancelled}
	var rows [][]any
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	for _, p := range pets {
		for n := s.faker.Number(0, 2); n > 0; n-- {
			day := today.AddDate(0, 0, s.faker.Number(1, horizonDays))
			status := statuses[s.faker.Number(0, len(statuses)-1)]
			serviceID := services[s.faker.Number(0, len(services)-1)]

			var scheduledDate *time.Time
			var scheduledTime pgtype.Time
			var vet *string
			if status == appointment.StatusConfirmed {
				v := s.faker.RandomString(veterinarians)
				scheduledDate, vet = &day, &v
				scheduledTime = pgtype.Time{Microseconds: int64(s.randomSlot()) * int64(time.Minute/time.Microsecond), Valid: true}
			}

			rows = append(rows, []any{
				uuid.New(), p.userID, p.id, day, s.faker.RandomString(reasons), string(status),
				serviceID, scheduledDate, scheduledTime, vet, now, now,
			})
		}
	}

	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{"appointment_requests"},
		[]string{"id", "user_id", "pet_id", "preferred_date", "reason", "status", "service_id",
			"scheduled_date", "scheduled_time", "veterinarian", "created_at", "updated_at"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy appointment requests: %w", err)
	}
	s.logger.Info().Int64("count", n).Msg("appointment requests seeded")
	return nil
}

func (s *seeder) randomSlot() clinic.Clock {
	for {
		start := int(s.clinic.Open) + 15*s.faker.Number(0, (int(s.clinic.Close)-int(s.clinic.Open))/15-2)
		if start < int(s.clinic.LunchStart) || start >= int(s.clinic.LunchEnd) {
			return clinic.Clock(start)
		}
	}
}
