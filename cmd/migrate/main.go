// Command migrate applies the schema migrations, or reverts the last one with -rollback.
package main

import (
	"flag"

	"github.com/joho/godotenv"
	"k8s.io/klog/v2"

	"github.com/monkeybits/edilcloud-back-sub000/dao/migrate"
	"github.com/monkeybits/edilcloud-back-sub000/dao/query"
)

func main() {
	rollback := flag.Bool("rollback", false, "revert the most recent migration")
	envFile := flag.String("env", ".debug.env", "optional dotenv file read before the config")
	klog.InitFlags(nil)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		klog.Infof("no env file %s: %v", *envFile, err)
	}

	db := query.GetDB()
	if *rollback {
		if err := migrate.RollbackLast(db); err != nil {
			klog.Fatalf("rollback: %v", err)
		}
		klog.Info("last migration reverted")
		return
	}
	if err := migrate.Run(db); err != nil {
		klog.Fatalf("migrate: %v", err)
	}
}
