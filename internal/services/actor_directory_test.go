package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/prestadia/backend/internal/models"
)

func TestDBActorDirectory_ResolveRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	directory := NewDBActorDirectory(db)

	t.Run("resolves a manager with its parent", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name, role, parent_id, commission_rate, created_at").
			WithArgs("manager-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "role", "parent_id", "commission_rate", "created_at"}).
				AddRow("manager-1", "Lucia", "MANAGER", "subadmin-1", "0.10", time.Now()))

		actor, err := directory.ResolveRole(context.Background(), "manager-1")
		assert.NoError(t, err)
		assert.Equal(t, models.RoleManager, actor.Role)
		assert.Equal(t, "subadmin-1", *actor.ParentID)
	})

	t.Run("unknown actor is not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name, role, parent_id, commission_rate, created_at").
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		_, err := directory.ResolveRole(context.Background(), "ghost")
		assert.True(t, errors.Is(err, models.ErrNotFound))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
