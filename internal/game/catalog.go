package game

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
)

// The career ladder is reference data: seeded once, read forever. Players
// copy a profession's figures at creation, so later catalog edits never
// touch an existing game.
var seedProfessions = []Profession{
	{
		Name:                 "Janitor",
		Description:          "Entry-level income, light obligations.",
		SalaryCents:          160_000,
		TaxRateBps:           1_200,
		OtherExpensesCents:   57_000,
		ChildExpenseCents:    0,
		StartingCashCents:    56_000,
		StartingSavingsCents: 40_000,
		Liabilities: []Liability{
			{Name: "mortgage", PaymentCents: 20_000, PrincipalCents: 3_800_000},
			{Name: "school_loan", PaymentCents: 0, PrincipalCents: 0},
			{Name: "car_loan", PaymentCents: 6_000, PrincipalCents: 400_000},
			{Name: "credit_card", PaymentCents: 3_000, PrincipalCents: 100_000},
			{Name: "retail_debt", PaymentCents: 1_500, PrincipalCents: 50_000},
		},
	},
	{
		Name:                 "Teacher",
		Description:          "Steady salary, clean balance sheet.",
		SalaryCents:          300_000,
		TaxRateBps:           2_000,
		StartingCashCents:    20_000,
		StartingSavingsCents: 0,
	},
	{
		Name:                 "Secretary",
		Description:          "Modest salary with consumer debt.",
		SalaryCents:          250_000,
		TaxRateBps:           1_800,
		OtherExpensesCents:   57_000,
		StartingCashCents:    71_000,
		StartingSavingsCents: 40_000,
		Liabilities: []Liability{
			{Name: "mortgage", PaymentCents: 40_000, PrincipalCents: 3_800_000},
			{Name: "school_loan", PaymentCents: 0, PrincipalCents: 0},
			{Name: "car_loan", PaymentCents: 8_000, PrincipalCents: 500_000},
			{Name: "credit_card", PaymentCents: 6_000, PrincipalCents: 200_000},
			{Name: "retail_debt", PaymentCents: 3_000, PrincipalCents: 100_000},
		},
	},
	{
		Name:                 "Nurse",
		Description:          "Mid salary, school loan still open.",
		SalaryCents:          310_000,
		TaxRateBps:           2_100,
		OtherExpensesCents:   61_000,
		ChildExpenseCents:    0,
		StartingCashCents:    48_000,
		StartingSavingsCents: 50_000,
		Liabilities: []Liability{
			{Name: "mortgage", PaymentCents: 40_000, PrincipalCents: 4_700_000},
			{Name: "school_loan", PaymentCents: 10_000, PrincipalCents: 600_000},
			{Name: "car_loan", PaymentCents: 9_000, PrincipalCents: 500_000},
			{Name: "credit_card", PaymentCents: 9_000, PrincipalCents: 300_000},
			{Name: "retail_debt", PaymentCents: 3_000, PrincipalCents: 100_000},
		},
	},
	{
		Name:                 "Police Officer",
		Description:          "Solid salary with a family budget.",
		SalaryCents:          300_000,
		TaxRateBps:           2_000,
		OtherExpensesCents:   69_000,
		ChildExpenseCents:    16_000,
		StartingCashCents:    52_000,
		StartingSavingsCents: 52_000,
		Liabilities: []Liability{
			{Name: "mortgage", PaymentCents: 40_000, PrincipalCents: 4_600_000},
			{Name: "school_loan", PaymentCents: 0, PrincipalCents: 0},
			{Name: "car_loan", PaymentCents: 10_000, PrincipalCents: 500_000},
			{Name: "credit_card", PaymentCents: 6_000, PrincipalCents: 200_000},
			{Name: "retail_debt", PaymentCents: 1_500, PrincipalCents: 50_000},
		},
	},
	{
		Name:                 "Engineer",
		Description:          "High salary, heavy mortgage.",
		SalaryCents:          490_000,
		TaxRateBps:           2_800,
		OtherExpensesCents:   109_000,
		ChildExpenseCents:    25_000,
		StartingCashCents:    40_000,
		StartingSavingsCents: 90_000,
		Liabilities: []Liability{
			{Name: "mortgage", PaymentCents: 70_000, PrincipalCents: 7_500_000},
			{Name: "school_loan", PaymentCents: 30_000, PrincipalCents: 1_200_000},
			{Name: "car_loan", PaymentCents: 14_000, PrincipalCents: 700_000},
			{Name: "credit_card", PaymentCents: 12_000, PrincipalCents: 400_000},
			{Name: "retail_debt", PaymentCents: 3_000, PrincipalCents: 100_000},
		},
	},
	{
		Name:                 "Lawyer",
		Description:          "Big paycheck, bigger school loan.",
		SalaryCents:          750_000,
		TaxRateBps:           3_200,
		OtherExpensesCents:   165_000,
		ChildExpenseCents:    38_000,
		StartingCashCents:    40_000,
		StartingSavingsCents: 135_000,
		Liabilities: []Liability{
			{Name: "mortgage", PaymentCents: 110_000, PrincipalCents: 11_500_000},
			{Name: "school_loan", PaymentCents: 39_000, PrincipalCents: 7_800_000},
			{Name: "car_loan", PaymentCents: 22_000, PrincipalCents: 1_100_000},
			{Name: "credit_card", PaymentCents: 18_000, PrincipalCents: 600_000},
			{Name: "retail_debt", PaymentCents: 4_500, PrincipalCents: 150_000},
		},
	},
	{
		Name:                 "Doctor",
		Description:          "Top of the ladder, top of the debt stack.",
		SalaryCents:          1_350_000,
		TaxRateBps:           3_600,
		OtherExpensesCents:   288_000,
		ChildExpenseCents:    64_000,
		StartingCashCents:    40_000,
		StartingSavingsCents: 400_000,
		Liabilities: []Liability{
			{Name: "mortgage", PaymentCents: 190_000, PrincipalCents: 20_200_000},
			{Name: "school_loan", PaymentCents: 75_000, PrincipalCents: 15_000_000},
			{Name: "car_loan", PaymentCents: 38_000, PrincipalCents: 1_900_000},
			{Name: "credit_card", PaymentCents: 27_000, PrincipalCents: 900_000},
			{Name: "retail_debt", PaymentCents: 3_000, PrincipalCents: 100_000},
		},
	},
}

// EnsureCatalog seeds the profession catalog if it is empty. Safe to run on
// every startup.
func (s *Service) EnsureCatalog(ctx context.Context) error {
	var count int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(1) FROM professions`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, p := range seedProfessions {
		liabilities, err := json.Marshal(p.Liabilities)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO professions
			    (name, description, salary_cents, tax_rate_bps, other_expenses_cents,
			     child_expense_cents, starting_cash_cents, starting_savings_cents, liabilities)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (name) DO NOTHING
		`, p.Name, p.Description, p.SalaryCents, p.TaxRateBps, p.OtherExpensesCents,
			p.ChildExpenseCents, p.StartingCashCents, p.StartingSavingsCents, string(liabilities))
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ListProfessions returns the catalog ordered by salary, the beginner-to-
// advanced order the lesson UI presents careers in.
func (s *Service) ListProfessions(ctx context.Context) ([]Profession, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, description, salary_cents, tax_rate_bps, other_expenses_cents,
		       child_expense_cents, starting_cash_cents, starting_savings_cents, liabilities
		FROM professions
		ORDER BY salary_cents ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Profession
	for rows.Next() {
		p, err := scanProfession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Service) GetProfession(ctx context.Context, id int64) (Profession, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, description, salary_cents, tax_rate_bps, other_expenses_cents,
		       child_expense_cents, starting_cash_cents, starting_savings_cents, liabilities
		FROM professions
		WHERE id = $1
	`, id)
	p, err := scanProfession(row)
	if err == pgx.ErrNoRows {
		return Profession{}, ErrNotFound
	}
	return p, err
}

func getProfessionTx(ctx context.Context, tx pgx.Tx, id int64) (Profession, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, name, description, salary_cents, tax_rate_bps, other_expenses_cents,
		       child_expense_cents, starting_cash_cents, starting_savings_cents, liabilities
		FROM professions
		WHERE id = $1
	`, id)
	p, err := scanProfession(row)
	if err == pgx.ErrNoRows {
		return Profession{}, ErrNotFound
	}
	return p, err
}

func scanProfession(row pgx.Row) (Profession, error) {
	var p Profession
	var liabilities []byte
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.SalaryCents, &p.TaxRateBps,
		&p.OtherExpensesCents, &p.ChildExpenseCents, &p.StartingCashCents,
		&p.StartingSavingsCents, &liabilities)
	if err != nil {
		return Profession{}, err
	}
	if err := json.Unmarshal(liabilities, &p.Liabilities); err != nil {
		return Profession{}, err
	}
	return p, nil
}
