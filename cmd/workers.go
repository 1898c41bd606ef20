/*
Copyright 2025 TutorWise Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"log"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	redis_db "github.com/tutorwise/tutorsync/internal/redis-db"
)

// workerCommands returns the command that runs the background worker: the
// asynq server handling deferred cleanup of synced queue entries.
func workerCommands(b *tutorsyncInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start background workers",
		Run: func(cmd *cobra.Command, args []string) {
			opts, err := redis_db.ParseRedisURL(b.cnf.Redis.Dns)
			if err != nil {
				log.Fatalf("Error parsing Redis URL: %v", err)
			}

			queues := map[string]int{
				b.cnf.Sync.CleanupQueue: 1,
			}

			srv := asynq.NewServer(
				asynq.RedisClientOpt{Addr: opts.Addr, Password: opts.Password, DB: opts.DB},
				asynq.Config{Concurrency: 1, Queues: queues},
			)

			mux := asynq.NewServeMux()
			mux.HandleFunc(b.cnf.Sync.CleanupQueue, b.sync.Syncer().HandleCleanup)

			if err := srv.Run(mux); err != nil {
				log.Fatal(err)
			}
		},
	}
	return cmd
}
