package main

import (
	"bytes"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/theritikchoure/logx"

	"github.com/mini_hdfs_project/client"
)

type Task struct {
	Operation int
	Filename  string
	DataSize  int
}

const (
	READ = iota
	WRITE

	CHARACTERS = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789\n"
)

// Creates a byte array with random characters
func generateData(rng *rand.Rand, size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = CHARACTERS[rng.Intn(len(CHARACTERS))]
	}
	return data
}

type tally struct {
	mu                 sync.Mutex
	writes, reads      int
	failures, mismatch int
}

func (t *tally) add(f func(*tally)) {
	t.mu.Lock()
	f(t)
	t.mu.Unlock()
}

// runClient writes its own file, then reads it back ops times and checks the bytes.
func runClient(c *client.Client, clientID, ops, size int, results *tally) {
	logx.Logf("[Client %d] Running...", logx.FGBLACK, logx.BGCYAN, clientID)
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(clientID)))

	write := Task{Operation: WRITE, Filename: fmt.Sprintf("loadgen_client%d.txt", clientID), DataSize: size}
	data := generateData(rng, write.DataSize)
	if _, err := c.Upload(write.Filename, bytes.NewReader(data)); err != nil {
		log.Printf("[Client %d] Write of %s failed: %v\n", clientID, write.Filename, err)
		results.add(func(t *tally) { t.failures++ })
		return
	}
	results.add(func(t *tally) { t.writes++ })

	read := Task{Operation: READ, Filename: write.Filename}
	for i := 0; i < ops; i++ {
		time.Sleep(time.Duration(rng.Intn(200)) * time.Millisecond)
		got, err := c.Download(read.Filename)
		switch {
		case err != nil:
			log.Printf("[Client %d] Read of %s failed: %v\n", clientID, read.Filename, err)
			results.add(func(t *tally) { t.failures++ })
		case !bytes.Equal(got, data):
			log.Printf("[Client %d] Read of %s returned different content\n", clientID, read.Filename)
			results.add(func(t *tally) { t.mismatch++ })
		default:
			results.add(func(t *tally) { t.reads++ })
		}
	}
	logx.Logf("[Client %d] Finished running...", logx.FGBLACK, logx.BGGREEN, clientID)
}

func main() {
	var (
		numOfClients int
		ops          int
		dataSize     int
	)

	cmd := &cobra.Command{
		Use:          "loadgen <namenode>",
		Short:        "Run concurrent upload and download clients against a namenode",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := &tally{}
			var wg sync.WaitGroup
			for i := 0; i < numOfClients; i++ {
				wg.Add(1)
				go func(id int) {
					defer wg.Done()
					runClient(client.NewClient(args[0]), id, ops, dataSize, results)
				}(i)
			}
			wg.Wait()

			fmt.Printf("writes=%d reads=%d failures=%d mismatches=%d\n",
				results.writes, results.reads, results.failures, results.mismatch)
			if results.failures > 0 || results.mismatch > 0 {
				return fmt.Errorf("%d operations failed", results.failures+results.mismatch)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&numOfClients, "clients", 10, "number of concurrent clients")
	cmd.Flags().IntVar(&ops, "reads", 5, "reads per client after its write")
	cmd.Flags().IntVar(&dataSize, "size", 65536, "bytes written by each client")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
