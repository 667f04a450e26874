package migrations

func init() {
	Migrations.MustRegister(exec("0002_create_progress.up.sql"), exec("0002_create_progress.down.sql"))
}
