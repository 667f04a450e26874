package migrations

func init() {
	Migrations.MustRegister(exec("0001_create_quizzes.up.sql"), exec("0001_create_quizzes.down.sql"))
}
