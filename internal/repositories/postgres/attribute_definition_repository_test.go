package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/asakaida/attrgate/internal/entities"
)

func TestAttributeDefinitionRepository_ListByEntityType(t *testing.T) {
	ctx := context.Background()

	t.Run("正常系: 定義順で取得", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock new: %v", err)
		}
		defer db.Close()

		rows := sqlmock.NewRows([]string{"attribute_id", "attribute_group", "write_guard"}).
			AddRow("name", "System", nil).
			AddRow("customColor", "Custom", `value in ["red", "blue"]`)
		mock.ExpectQuery(`FROM attribute_definitions\s+WHERE entity_type = \$1\s+ORDER BY position ASC`).
			WithArgs("Product").
			WillReturnRows(rows)

		repo := NewPostgresAttributeDefinitionRepository(db)
		defs, err := repo.ListByEntityType(ctx, "Product")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		if len(defs) != 2 {
			t.Fatalf("Expected 2 definitions, got %d", len(defs))
		}
		if defs[0].ID != "name" || defs[0].Group != entities.AttributeGroupSystem || defs[0].WriteGuard != "" {
			t.Errorf("Unexpected first definition: %+v", defs[0])
		}
		if defs[1].Group != entities.AttributeGroupCustom || defs[1].WriteGuard == "" {
			t.Errorf("Unexpected second definition: %+v", defs[1])
		}
	})

	t.Run("正常系: 未知のエンティティ型は空", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock new: %v", err)
		}
		defer db.Close()

		mock.ExpectQuery(`FROM attribute_definitions`).
			WithArgs("Nothing").
			WillReturnRows(sqlmock.NewRows([]string{"attribute_id", "attribute_group", "write_guard"}))

		defs, err := NewPostgresAttributeDefinitionRepository(db).ListByEntityType(ctx, "Nothing")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if defs == nil || len(defs) != 0 {
			t.Errorf("Expected empty slice, got %v", defs)
		}
	})

	t.Run("異常系: 不正なグループ", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock new: %v", err)
		}
		defer db.Close()

		mock.ExpectQuery(`FROM attribute_definitions`).
			WillReturnRows(sqlmock.NewRows([]string{"attribute_id", "attribute_group", "write_guard"}).
				AddRow("name", "Weird", nil))

		if _, err := NewPostgresAttributeDefinitionRepository(db).ListByEntityType(ctx, "Product"); err == nil {
			t.Fatal("Expected error for unknown group")
		}
	})
}

func TestAttributeDefinitionRepository_Replace(t *testing.T) {
	ctx := context.Background()
	defs := []*entities.AttributeDefinition{
		{ID: "name", Group: entities.AttributeGroupSystem},
		{ID: "customColor", Group: entities.AttributeGroupCustom, WriteGuard: `value != ""`},
	}

	t.Run("正常系: 削除と挿入を一つのトランザクションで", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock new: %v", err)
		}
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM attribute_definitions WHERE entity_type = \$1`).
			WithArgs("Product").
			WillReturnResult(sqlmock.NewResult(0, 3))
		prep := mock.ExpectPrepare(`INSERT INTO attribute_definitions`)
		prep.ExpectExec().
			WithArgs("Product", 0, "name", "System", nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		prep.ExpectExec().
			WithArgs("Product", 1, "customColor", "Custom", `value != ""`, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		if err := NewPostgresAttributeDefinitionRepository(db).Replace(ctx, "Product", defs); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("expectations: %v", err)
		}
	})

	t.Run("異常系: 挿入失敗でロールバック", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock new: %v", err)
		}
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM attribute_definitions`).WillReturnResult(sqlmock.NewResult(0, 0))
		prep := mock.ExpectPrepare(`INSERT INTO attribute_definitions`)
		prep.ExpectExec().WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		if err := NewPostgresAttributeDefinitionRepository(db).Replace(ctx, "Product", defs); err == nil {
			t.Fatal("Expected error, got nil")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("expectations: %v", err)
		}
	})

	t.Run("異常系: 不正な定義はDBに触れない", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock new: %v", err)
		}
		defer db.Close()

		bad := []*entities.AttributeDefinition{{ID: "", Group: entities.AttributeGroupSystem}}
		if err := NewPostgresAttributeDefinitionRepository(db).Replace(ctx, "Product", bad); err == nil {
			t.Fatal("Expected validation error")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("expectations: %v", err)
		}
	})
}

func TestAttributeDefinitionRepository_ListEntityTypes(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT DISTINCT entity_type FROM attribute_definitions`).
		WillReturnRows(sqlmock.NewRows([]string{"entity_type"}).AddRow("Customer").AddRow("Product"))

	types, err := NewPostgresAttributeDefinitionRepository(db).ListEntityTypes(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(types) != 2 || types[0] != "Customer" || types[1] != "Product" {
		t.Errorf("Unexpected entity types: %v", types)
	}
}
