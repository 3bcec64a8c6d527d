package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/netdumpsystems/netdump-go"
)

func main() {
	nd, err := netdump.New(&netdump.Options{Level: netdump.LevelBody})
	if err != nil {
		panic(err)
	}
	defer nd.Close()
	http.DefaultClient = nd.DefaultClient

	resp, err := http.Get("https://httpbin.org/json")
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()

	fmt.Println(resp.Status)
	if _, err := io.Copy(os.Stdout, resp.Body); err != nil {
		panic(err)
	}
	fmt.Println()

	if store := nd.Store(); store != nil {
		fmt.Printf("%d transcripts, %d bytes in %s\n", store.Len(), store.Size(), store.Dir())
	}
}
