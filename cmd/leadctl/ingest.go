package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ingestCorpus string

func init() {
	ingestCmd.Flags().StringVar(&ingestCorpus, "corpus", "", "corpus name (defaults to KNOWLEDGE_CORPUS)")
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [source...]",
	Short: "Chunk, embed and store knowledge documents",
	Long: `Load PDF or text documents, split them into chunks, embed them and
persist the chunks to Redis so the API can hydrate without re-embedding.

Sources are local paths or s3://bucket/key URIs. With no arguments the
KNOWLEDGE_SOURCES setting is used.

Examples:
  leadctl ingest ./docs/faq.pdf
  leadctl ingest --corpus emaar s3://sales-docs/faq.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, cfg, _, err := buildServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		corpus := ingestCorpus
		if corpus == "" {
			corpus = cfg.KnowledgeCorpus
		}
		sources := args
		if len(sources) == 0 {
			sources = cfg.KnowledgeSources
		}
		if len(sources) == 0 {
			return fmt.Errorf("no sources given and KNOWLEDGE_SOURCES is empty")
		}

		n, err := svc.Ingester.Ingest(ctx, corpus, sources)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ingested %d chunks into corpus %q\n", n, corpus)
		return nil
	},
}
