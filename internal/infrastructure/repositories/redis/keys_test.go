package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys_Layout(t *testing.T) {
	k := keys{prefix: "pairline:"}

	assert.Equal(t, "pairline:schema:version", k.schemaVersion())
	assert.Equal(t, "pairline:lock:migrations", k.migrationLock())
	assert.Equal(t, "pairline:user:u1", k.user("u1"))
	assert.Equal(t, "pairline:user:u1:report_count", k.userReports("u1"))
	assert.Equal(t, "pairline:report:r1", k.report("r1"))
	assert.Equal(t, "pairline:reports:by:u1", k.reportsFor("u1"))
}

func TestMigrations_AreOrdered(t *testing.T) {
	migrations := getMigrations()
	for i := 1; i < len(migrations); i++ {
		assert.Equal(t, migrations[i-1].Version+1, migrations[i].Version)
	}
}
